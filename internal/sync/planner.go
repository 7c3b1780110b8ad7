package sync

import "sort"

type plan struct {
	writes    []*Change
	deletes   []*Change
	unchanged int
	ignored   int
}

func (p *plan) changes() []*Change {
	return append(append([]*Change{}, p.writes...), p.deletes...)
}

// planMirror computes the changes that make dst identical to src. Entries matched by the ignore
// list are left alone on both sides.
func planMirror(pass string, src, dst map[string]*FileMetadata, ignore *IgnoreList, deleteExtraneous bool) *plan {
	p := &plan{}

	for path, s := range src {
		if ignore.ShouldIgnore(path) {
			p.ignored++
			continue
		}
		d, exists := dst[path]
		if !exists {
			p.writes = append(p.writes, &Change{Pass: pass, Action: ActionWrite, Path: path, Size: s.Size, Reason: "missing"})
			continue
		}
		if changed, reason := hasChanged(s, d); changed {
			p.writes = append(p.writes, &Change{Pass: pass, Action: ActionWrite, Path: path, Size: s.Size, Reason: reason})
			continue
		}
		p.unchanged++
	}

	if deleteExtraneous {
		for path, d := range dst {
			if _, exists := src[path]; exists {
				continue
			}
			if ignore.ShouldIgnore(path) {
				p.ignored++
				continue
			}
			p.deletes = append(p.deletes, &Change{Pass: pass, Action: ActionDelete, Path: path, Size: d.Size, Reason: "not in source"})
		}
	}

	sort.Slice(p.writes, func(i, j int) bool { return p.writes[i].Path < p.writes[j].Path })
	sort.Slice(p.deletes, func(i, j int) bool { return p.deletes[i].Path < p.deletes[j].Path })
	return p
}

// project returns dst as it would look after applying p, used to chain previews.
func project(p *plan, src, dst map[string]*FileMetadata) map[string]*FileMetadata {
	out := make(map[string]*FileMetadata, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for _, c := range p.writes {
		out[c.Path] = src[c.Path]
	}
	for _, c := range p.deletes {
		delete(out, c.Path)
	}
	return out
}
