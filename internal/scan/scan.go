// Package scan implements the Scanner component: repository discovery,
// loose object enumeration, and the three-pass grouping that turns a set
// of repositories into a list of replacement plans.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hnakamur/git-share-obj/internal/repo"
)

// reservedObjectSubdirs are the object-directory entries that are never
// fan-out hash directories and must never be descended into as objects.
var reservedObjectSubdirs = map[string]bool{"pack": true, "info": true}

// LooseObject describes one file discovered under a repository's
// object directory at <object-dir>/xx/yyyy….
type LooseObject struct {
	Path        string
	Fingerprint string // xx + yyyy…, the object's content hash as named on disk
	Device      uint64
	Inode       uint64
	NLink       uint64
	Size        int64
}

// isHex reports whether s is non-empty and consists solely of lowercase
// or uppercase hex digits.
func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// looseObjectFromPath validates that path looks like <obj-dir>/xx/yyyy…
// (a two-hex-character directory and an all-hex remainder) and, if so,
// stats it and returns a LooseObject. Anything else — including orphan
// "*.git-share-obj.bak" files, which fail the all-hex check because of
// their dot and suffix — returns ok=false and is ignored by the scan.
func looseObjectFromPath(path string, info fs.FileInfo) (LooseObject, bool) {
	dir := filepath.Base(filepath.Dir(path))
	name := filepath.Base(path)
	if len(dir) != 2 || !isHex(dir) || !isHex(name) {
		return LooseObject{}, false
	}
	if reservedObjectSubdirs[dir] {
		return LooseObject{}, false
	}

	dev, ino, nlink, ok := platformStat(info)
	if !ok {
		return LooseObject{}, false
	}

	return LooseObject{
		Path:        path,
		Fingerprint: dir + name,
		Device:      dev,
		Inode:       ino,
		NLink:       nlink,
		Size:        info.Size(),
	}, true
}

// ObjectsIn enumerates the loose objects directly under repo's object
// directory, walking exactly the <object-dir>/xx/ fan-out directories
// and ignoring the reserved "pack" and "info" subdirectories. A
// transient I/O error reading one entry is logged to the returned
// error slice and does not abort the scan of the rest of the tree.
func ObjectsIn(r *repo.Repository) ([]LooseObject, []error) {
	var objects []LooseObject
	var errs []error

	entries, err := os.ReadDir(r.ObjectDir)
	if err != nil {
		return nil, []error{fmt.Errorf("scan %s: read object dir: %w", r.Root, err)}
	}

	for _, fanout := range entries {
		if !fanout.IsDir() || len(fanout.Name()) != 2 || !isHex(fanout.Name()) {
			continue
		}
		if reservedObjectSubdirs[fanout.Name()] {
			continue
		}

		fanoutPath := filepath.Join(r.ObjectDir, fanout.Name())
		files, err := os.ReadDir(fanoutPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: read %s: %w", r.Root, fanoutPath, err))
			continue
		}

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			full := filepath.Join(fanoutPath, f.Name())
			info, err := f.Info()
			if err != nil {
				errs = append(errs, fmt.Errorf("scan %s: stat %s: %w", r.Root, full, err))
				continue
			}
			if obj, ok := looseObjectFromPath(full, info); ok {
				objects = append(objects, obj)
			}
		}
	}

	return objects, errs
}

// IsRepository reports whether root's .git/objects subtree exists.
func IsRepository(root string) bool {
	info, err := os.Stat(filepath.Join(root, ".git", "objects"))
	return err == nil && info.IsDir()
}

// DiscoverRepos walks each of roots, recognizing a repository by the
// presence of a .git/objects directory, never descending further into
// a .git subtree once found, and deduplicating by canonical path so
// overlapping input roots produce one entry per repository. The
// returned list is sorted by canonical root path for deterministic
// processing order.
func DiscoverRepos(roots []string) ([]*repo.Repository, error) {
	seen := make(map[string]bool)
	var found []string

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Transient errors (permission denied, vanished entry) are
				// skipped, not fatal to the overall scan.
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if d.Name() == ".git" {
				if IsRepository(filepath.Dir(path)) {
					canon, cerr := canonicalize(filepath.Dir(path))
					if cerr == nil && !seen[canon] {
						seen[canon] = true
						found = append(found, canon)
					}
				}
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("discover repos under %s: %w", root, err)
		}
	}

	sort.Strings(found)
	repos := make([]*repo.Repository, 0, len(found))
	for _, root := range found {
		repos = append(repos, repo.New(root))
	}
	return repos, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// A symlink that cannot be resolved is unusual but not fatal;
		// fall back to the absolute path.
		return abs, nil
	}
	return resolved, nil
}

// InodeCluster is a set of LooseObjects on one device that already share
// one inode — i.e. are already hard-linked to one another.
type InodeCluster struct {
	Device  uint64
	Inode   uint64
	Objects []LooseObject
}

// ReplacementPlan names one source object plus the ordered list of
// target objects (one representative per non-source InodeCluster) to be
// linked to it.
type ReplacementPlan struct {
	Device      uint64
	Fingerprint string
	Source      LooseObject
	Targets     []LooseObject
}

// CollectGroups enumerates the loose objects of every repository in
// repos, then buckets them device → fingerprint → inode exactly as
// spec.md §4.4 describes, emitting one ReplacementPlan per bucket that
// contains two or more distinct InodeClusters. Buckets with zero or one
// cluster — a singleton object or an already fully-linked group — yield
// no plan. Enumeration errors for individual repositories are collected
// and returned alongside whatever plans could still be computed.
func CollectGroups(repos []*repo.Repository) ([]ReplacementPlan, []error) {
	var all []LooseObject
	var errs []error

	for _, r := range repos {
		objs, objErrs := ObjectsIn(r)
		all = append(all, objs...)
		errs = append(errs, objErrs...)
	}

	byDevice := make(map[uint64][]LooseObject)
	for _, o := range all {
		byDevice[o.Device] = append(byDevice[o.Device], o)
	}

	var plans []ReplacementPlan
	for device, objs := range byDevice {
		byFingerprint := make(map[string][]LooseObject)
		for _, o := range objs {
			byFingerprint[o.Fingerprint] = append(byFingerprint[o.Fingerprint], o)
		}

		for fingerprint, members := range byFingerprint {
			clusters := clusterByInode(device, members)
			if len(clusters) < 2 {
				continue
			}
			plans = append(plans, buildPlan(device, fingerprint, clusters))
		}
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Fingerprint != plans[j].Fingerprint {
			return plans[i].Fingerprint < plans[j].Fingerprint
		}
		return plans[i].Device < plans[j].Device
	})

	return plans, errs
}

func clusterByInode(device uint64, objs []LooseObject) []InodeCluster {
	byInode := make(map[uint64][]LooseObject)
	for _, o := range objs {
		byInode[o.Inode] = append(byInode[o.Inode], o)
	}
	clusters := make([]InodeCluster, 0, len(byInode))
	for inode, members := range byInode {
		clusters = append(clusters, InodeCluster{Device: device, Inode: inode, Objects: members})
	}
	return clusters
}

// leastPath returns the lexicographically smallest path among objs,
// the tie-break (and, for single-member clusters, the only choice) used
// whenever a representative file must be picked from a cluster.
func leastPath(objs []LooseObject) LooseObject {
	best := objs[0]
	for _, o := range objs[1:] {
		if strings.Compare(o.Path, best.Path) < 0 {
			best = o
		}
	}
	return best
}

// buildPlan selects the source cluster (largest size, tie-broken by
// lowest inode number, then by the lexicographically least path) and
// emits a plan whose targets are one representative path from every
// other cluster.
func buildPlan(device uint64, fingerprint string, clusters []InodeCluster) ReplacementPlan {
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].Objects) != len(clusters[j].Objects) {
			return len(clusters[i].Objects) > len(clusters[j].Objects)
		}
		if clusters[i].Inode != clusters[j].Inode {
			return clusters[i].Inode < clusters[j].Inode
		}
		return strings.Compare(
			leastPath(clusters[i].Objects).Path,
			leastPath(clusters[j].Objects).Path,
		) < 0
	})

	sourceCluster := clusters[0]
	source := leastPath(sourceCluster.Objects)

	targets := make([]LooseObject, 0, len(clusters)-1)
	for _, c := range clusters[1:] {
		targets = append(targets, leastPath(c.Objects))
	}

	return ReplacementPlan{
		Device:      device,
		Fingerprint: fingerprint,
		Source:      source,
		Targets:     targets,
	}
}
