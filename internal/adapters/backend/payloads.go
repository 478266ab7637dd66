package backend

import (
	"github.com/foundry/artifactview/internal/core/models"
)

type projectMeta struct {
	Name         string `xml:"name,attr"`
	Repositories []struct {
		Name  string   `xml:"name,attr"`
		Archs []string `xml:"arch"`
	} `xml:"repository"`
}

type flagEntry struct {
	Repository string `xml:"repository,attr"`
	Arch       string `xml:"arch,attr"`
}

type flagSet struct {
	Enable  []flagEntry `xml:"enable"`
	Disable []flagEntry `xml:"disable"`
}

// disabled reports whether the flag is disabled package-wide.
func (f flagSet) disabled() bool {
	for _, d := range f.Disable {
		if d.Repository == "" && d.Arch == "" {
			return true
		}
	}
	return false
}

type packageMeta struct {
	Name         string  `xml:"name,attr"`
	Project      string  `xml:"project,attr"`
	SourceAccess flagSet `xml:"sourceaccess"`
}

type revisionList struct {
	Revisions []struct {
		Rev string `xml:"rev,attr"`
	} `xml:"revision"`
}

type diffSide struct {
	Name string `xml:"name,attr"`
	MD5  string `xml:"md5,attr"`
	Size int64  `xml:"size,attr"`
}

type diffEntry struct {
	State string    `xml:"state,attr"`
	Old   *diffSide `xml:"old"`
	New   *diffSide `xml:"new"`
	Diff  struct {
		Lines   int    `xml:"lines,attr"`
		Content string `xml:",chardata"`
	} `xml:"diff"`
}

func (e diffEntry) toModel() models.DiffFile {
	f := models.DiffFile{State: e.State, Content: []byte(e.Diff.Content)}
	switch {
	case e.New != nil:
		f.Path = e.New.Name
		if e.Old != nil && e.Old.Name != e.New.Name {
			f.OldPath = e.Old.Name
		}
	case e.Old != nil:
		f.Path = e.Old.Name
	}
	f.Kind = models.ClassifyDiffPath(f.Path)
	return f
}

type sourceDiff struct {
	Files []diffEntry `xml:"files>file"`
}

type multibuildFile struct {
	Flavors  []string `xml:"flavor"`
	Packages []string `xml:"package"`
}

type logDirectory struct {
	Entries []struct {
		Name  string `xml:"name,attr"`
		Size  int64  `xml:"size,attr"`
		MTime int64  `xml:"mtime,attr"`
	} `xml:"entry"`
}

type jobStatus struct {
	WorkerID  string `xml:"workerid,attr"`
	StartTime string `xml:"starttime,attr"`
	Code      string `xml:"code,attr"`
}

type resultList struct {
	Results []struct {
		Repository string `xml:"repository,attr"`
		Arch       string `xml:"arch,attr"`
		Statuses   []struct {
			Package string `xml:"package,attr"`
			Code    string `xml:"code,attr"`
		} `xml:"status"`
	} `xml:"result"`
}

// statusOf picks the status entry addressed by the composite package name.
func (l resultList) statusOf(t models.BuildTarget) string {
	for _, r := range l.Results {
		if r.Repository != t.Repository || r.Arch != t.Arch {
			continue
		}
		for _, s := range r.Statuses {
			if s.Package == t.Package {
				return s.Code
			}
		}
	}
	return ""
}

type buildDepInfo struct {
	Packages []struct {
		Name    string   `xml:"name,attr"`
		PkgDeps []string `xml:"pkgdep"`
	} `xml:"package"`
}
