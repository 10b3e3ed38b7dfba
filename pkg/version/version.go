// Package version reports what build of linechat is running.
//
// Release builds stamp it via ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/linechat/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/linechat/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/linechat/pkg/version.date=2026-01-01"
//
// Without ldflags, the VCS stamp that the go command embeds is used.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	tag    = ""
	commit = ""
	date   = ""
)

const shortCommit = 7

// Info describes one build.
type Info struct {
	Tag       string // release tag, empty for untagged builds
	Commit    string // short revision, empty when unknown
	Date      string // build or commit date, empty when unknown
	Modified  bool   // built from a dirty tree
	GoVersion string
}

var (
	infoOnce sync.Once
	info     Info
)

// Get returns the build info, resolved once.
func Get() Info {
	infoOnce.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		info = resolve(bi)
	})
	return info
}

// resolve prefers ldflags values and fills the gaps from the embedded
// VCS settings.
func resolve(bi *debug.BuildInfo) Info {
	i := Info{Tag: tag, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if bi == nil {
		return i
	}
	if bi.GoVersion != "" {
		i.GoVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.Date == "" {
				i.Date = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	if len(i.Commit) > shortCommit {
		i.Commit = i.Commit[:shortCommit]
	}
	return i
}

// String is the short form: the tag, else the commit, else "dev".
func (i Info) String() string {
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "" && i.Modified:
		return i.Commit + "-dirty"
	case i.Commit != "":
		return i.Commit
	default:
		return "dev"
	}
}

// Full adds the commit and date to the short form when they are known.
func (i Info) Full() string {
	s := i.String()
	if i.Tag != "" && i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Commit != "" && i.Date != "" {
		s += " built " + i.Date
	}
	return s
}

// String returns Get().String().
func String() string { return Get().String() }

// Banner returns the line printed by --version.
func Banner(program string) string {
	i := Get()
	return program + " " + i.Full() + " " + i.GoVersion
}
