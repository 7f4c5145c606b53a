package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hnakamur/git-share-obj/internal/repo"
)

const testHash = "cdef1234567890abcdef1234567890abcdef12"

func makeObject(t *testing.T, objDir, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(objDir, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(full, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func makeRepo(t *testing.T, base, name string) *repo.Repository {
	t.Helper()
	root := filepath.Join(base, name)
	if err := os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755); err != nil {
		t.Fatal(err)
	}
	return repo.New(root)
}

func TestLooseObjectFromPath_Valid(t *testing.T) {
	base := t.TempDir()
	r := makeRepo(t, base, "repo1")
	path := makeObject(t, r.ObjectDir, "ab", testHash, "test")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := looseObjectFromPath(path, info)
	if !ok {
		t.Fatal("expected a valid loose object")
	}
	if obj.Fingerprint != "ab"+testHash {
		t.Errorf("Fingerprint = %q, want %q", obj.Fingerprint, "ab"+testHash)
	}
	if obj.Size != 4 {
		t.Errorf("Size = %d, want 4", obj.Size)
	}
}

func TestLooseObjectFromPath_RejectsNonHexDir(t *testing.T) {
	base := t.TempDir()
	r := makeRepo(t, base, "repo1")
	path := makeObject(t, r.ObjectDir, "zz", testHash, "x")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := looseObjectFromPath(path, info); ok {
		t.Error("expected non-hex directory name to be rejected")
	}
}

func TestLooseObjectFromPath_RejectsBackupFile(t *testing.T) {
	base := t.TempDir()
	r := makeRepo(t, base, "repo1")
	path := makeObject(t, r.ObjectDir, "ab", testHash+".git-share-obj.bak", "x")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := looseObjectFromPath(path, info); ok {
		t.Error("orphan backup files must never be treated as loose objects")
	}
}

func TestObjectsIn_ExcludesPackAndInfo(t *testing.T) {
	base := t.TempDir()
	r := makeRepo(t, base, "repo1")
	makeObject(t, r.ObjectDir, "ab", testHash, "test")
	if err := os.MkdirAll(filepath.Join(r.ObjectDir, "pack"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.ObjectDir, "pack", "pack-abc.pack"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(r.ObjectDir, "info"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.ObjectDir, "info", "packs"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	objs, errs := ObjectsIn(r)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(objs) != 1 {
		t.Fatalf("len(objs) = %d, want 1", len(objs))
	}
}

func TestDiscoverRepos_FindsMultipleAndDeduplicates(t *testing.T) {
	base := t.TempDir()
	makeRepo(t, base, "repo1")
	makeRepo(t, base, "nested/repo2")

	repos, err := DiscoverRepos([]string{base, base})
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 {
		t.Fatalf("len(repos) = %d, want 2 (got %v)", len(repos), repos)
	}
}

func TestDiscoverRepos_DoesNotDescendIntoGitDir(t *testing.T) {
	base := t.TempDir()
	r := makeRepo(t, base, "repo1")
	// Create a directory inside .git that itself looks like a nested repo;
	// it must never be reported as a separate repository.
	if err := os.MkdirAll(filepath.Join(r.Root, ".git", "objects", "modules", ".git", "objects"), 0o755); err != nil {
		t.Fatal(err)
	}

	repos, err := DiscoverRepos([]string{base})
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 1 {
		t.Fatalf("len(repos) = %d, want 1 (got %v)", len(repos), repos)
	}
}

// A small end-to-end harness mirroring the "independent duplicates"
// scenario: two repositories each hold their own loose copy of the same
// object on the same device.
func TestCollectGroups_IndependentDuplicatesProduceOnePlan(t *testing.T) {
	base := t.TempDir()
	repo1 := makeRepo(t, base, "repo1")
	repo2 := makeRepo(t, base, "repo2")
	makeObject(t, repo1.ObjectDir, "ab", testHash, "identical")
	makeObject(t, repo2.ObjectDir, "ab", testHash, "identical")

	plans, errs := CollectGroups([]*repo.Repository{repo1, repo2})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(plans) != 1 {
		t.Fatalf("len(plans) = %d, want 1", len(plans))
	}
	if len(plans[0].Targets) != 1 {
		t.Fatalf("len(Targets) = %d, want 1", len(plans[0].Targets))
	}
}

func TestCollectGroups_NoDuplicatesWhenHashesDiffer(t *testing.T) {
	base := t.TempDir()
	repo1 := makeRepo(t, base, "repo1")
	makeObject(t, repo1.ObjectDir, "ab", testHash, "content-a")
	makeObject(t, repo1.ObjectDir, "cd", "ef12345678901234567890123456789012abcd", "content-b")

	plans, errs := CollectGroups([]*repo.Repository{repo1})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(plans) != 0 {
		t.Fatalf("len(plans) = %d, want 0", len(plans))
	}
}

// Boundary case (b): a group where all members already share an inode
// produces no plan.
func TestCollectGroups_AlreadyFullyLinkedProducesNoPlan(t *testing.T) {
	base := t.TempDir()
	repo1 := makeRepo(t, base, "repo1")
	repo2 := makeRepo(t, base, "repo2")
	src := makeObject(t, repo1.ObjectDir, "ab", testHash, "identical")
	dstDir := filepath.Join(repo2.ObjectDir, "ab")
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(src, filepath.Join(dstDir, testHash)); err != nil {
		t.Skipf("hard links unsupported on this filesystem: %v", err)
	}

	plans, errs := CollectGroups([]*repo.Repository{repo1, repo2})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(plans) != 0 {
		t.Fatalf("len(plans) = %d, want 0 (already linked)", len(plans))
	}
}

// An existing hard-linked pair must be chosen as the source cluster
// over a lone, independent duplicate — even though the lone duplicate
// may be the "newest" file.
func TestCollectGroups_ExistingHardlinkGroupIsSource(t *testing.T) {
	base := t.TempDir()
	repo1 := makeRepo(t, base, "repo1") // lone independent copy
	repo2 := makeRepo(t, base, "repo2") // hard-linked pair with repo3
	repo3 := makeRepo(t, base, "repo3")

	makeObject(t, repo1.ObjectDir, "ab", testHash, "identical")
	src := makeObject(t, repo2.ObjectDir, "ab", testHash, "identical")
	dstDir := filepath.Join(repo3.ObjectDir, "ab")
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(src, filepath.Join(dstDir, testHash)); err != nil {
		t.Skipf("hard links unsupported on this filesystem: %v", err)
	}

	plans, errs := CollectGroups([]*repo.Repository{repo1, repo2, repo3})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(plans) != 1 {
		t.Fatalf("len(plans) = %d, want 1", len(plans))
	}
	plan := plans[0]
	// Source.Path is <repo>/.git/objects/ab/<hash>; four Dir calls reach <repo>.
	if filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(plan.Source.Path))))) == "repo1" {
		t.Errorf("source should come from the existing hard-link group, got %s", plan.Source.Path)
	}
	if len(plan.Targets) != 1 {
		t.Fatalf("len(Targets) = %d, want 1", len(plan.Targets))
	}
}

// Boundary case (a): two repositories on different devices sharing an
// identical object must never be grouped together. CollectGroups reads
// devices from stat, so this test does not call it: it buckets two
// hand-built objects by device the way CollectGroups does and checks
// that clusterByInode never sees both in one bucket.
func TestCollectGroups_CrossDeviceNeverGrouped(t *testing.T) {
	obj1 := LooseObject{Path: "/dev1/repo1/.git/objects/ab/" + testHash, Fingerprint: "ab" + testHash, Device: 1, Inode: 10}
	obj2 := LooseObject{Path: "/dev2/repo2/.git/objects/ab/" + testHash, Fingerprint: "ab" + testHash, Device: 2, Inode: 20}

	byDevice := map[uint64][]LooseObject{1: {obj1}, 2: {obj2}}
	var totalPlans int
	for device, objs := range byDevice {
		clusters := clusterByInode(device, objs)
		if len(clusters) >= 2 {
			totalPlans++
		}
	}
	if totalPlans != 0 {
		t.Errorf("cross-device objects must never form a multi-cluster group")
	}
}
