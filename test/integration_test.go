package test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ulikunitz/xz"
)

// TestIntegration builds the debmirror binary and mirrors a signed
// repository served over HTTP
func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available, skipping integration tests")
	}

	// Get project root
	projectRoot, err := getProjectRoot()
	if err != nil {
		t.Fatalf("Failed to find project root: %v", err)
	}

	// Build debmirror binary
	t.Log("Building debmirror binary...")
	bin := filepath.Join(t.TempDir(), "debmirror")
	if err := buildDebmirror(projectRoot, bin); err != nil {
		t.Fatalf("Failed to build debmirror: %v", err)
	}

	repo := newRepository(t, map[string][]byte{
		"debs/alpha_1.0_iphoneos-arm.deb": []byte("!<arch>\ndebian-binary alpha"),
		"debs/beta_2.1_iphoneos-arm.deb":  []byte("!<arch>\ndebian-binary beta beta"),
	})

	testDir := t.TempDir()

	t.Run("Sync", func(t *testing.T) {
		testSync(t, bin, repo, testDir)
	})

	t.Run("Resync", func(t *testing.T) {
		testResync(t, bin, repo, testDir)
	})

	t.Run("Verify", func(t *testing.T) {
		testVerify(t, bin, repo, testDir)
	})

	t.Run("Parse", func(t *testing.T) {
		testParse(t, bin, testDir)
	})

	t.Run("BadSignature", func(t *testing.T) {
		testBadSignature(t, bin, repo)
	})
}

func testSync(t *testing.T, bin string, repo *repository, outDir string) {
	out, err := run(bin, "sync",
		"--base-url", repo.server.URL,
		"--output-dir", outDir,
		"--index", "Packages.xz",
		"--keyring", repo.keyPath,
	)
	if err != nil {
		t.Fatalf("sync failed: %v\n%s", err, out)
	}

	for name, data := range repo.debs {
		got, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("Expected %s to be mirrored: %v", name, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("%s content mismatch", name)
		}
	}

	if !strings.Contains(out, "downloaded: 2") {
		t.Errorf("Expected two downloads, got:\n%s", out)
	}
}

func testResync(t *testing.T, bin string, repo *repository, outDir string) {
	before := repo.hits("/debs/alpha_1.0_iphoneos-arm.deb")

	out, err := run(bin, "sync",
		"--base-url", repo.server.URL,
		"--output-dir", outDir,
		"--index", "Packages.xz",
		"--keyring", repo.keyPath,
		"--always-verify",
	)
	if err != nil {
		t.Fatalf("resync failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "skipped: 2") {
		t.Errorf("Expected both packages to be skipped, got:\n%s", out)
	}
	if after := repo.hits("/debs/alpha_1.0_iphoneos-arm.deb"); after != before {
		t.Errorf("Package fetched again on resync (%d -> %d)", before, after)
	}
}

func testVerify(t *testing.T, bin string, repo *repository, outDir string) {
	name := "debs/beta_2.1_iphoneos-arm.deb"
	sum := sha256.Sum256(repo.debs[name])
	path := filepath.Join(outDir, filepath.FromSlash(name))

	out, err := run(bin, "verify", path, "--sha256", hex.EncodeToString(sum[:]))
	if err != nil {
		t.Fatalf("verify failed: %v\n%s", err, out)
	}

	if _, err := run(bin, "verify", path, "--strict", "--sha256", hex.EncodeToString(sum[:])); err == nil {
		t.Error("Expected strict verification to fail without MD5 and SHA1")
	}
}

func testParse(t *testing.T, bin, outDir string) {
	matches, err := filepath.Glob(filepath.Join(outDir, "*", "Packages"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("Expected a decompressed index in a run directory, got %v (%v)", matches, err)
	}

	out, err := run(bin, "parse", matches[0])
	if err != nil {
		t.Fatalf("parse failed: %v\n%s", err, out)
	}
	if strings.Count(out, "Package: ") != 2 {
		t.Errorf("Expected 2 stanzas, got:\n%s", out)
	}
}

func testBadSignature(t *testing.T, bin string, repo *repository) {
	other := newRepository(t, map[string][]byte{})

	out, err := run(bin, "sync",
		"--base-url", repo.server.URL,
		"--output-dir", t.TempDir(),
		"--index", "Packages.xz",
		"--keyring", other.keyPath,
	)
	if err == nil {
		t.Fatalf("Expected sync with an untrusted key to fail:\n%s", out)
	}
}

type repository struct {
	server  *httptest.Server
	keyPath string
	debs    map[string][]byte

	mu    sync.Mutex
	count map[string]int
}

func (r *repository) hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count[path]
}

// newRepository serves debs with an xz index and an InRelease file signed by
// a fresh key
func newRepository(t *testing.T, debs map[string][]byte) *repository {
	t.Helper()

	entity, err := openpgp.NewEntity("Integration", "", "integration@example.com", nil)
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	var pub bytes.Buffer
	w, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("Failed to armor key: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("Failed to serialize key: %v", err)
	}
	w.Close()
	keyPath := filepath.Join(t.TempDir(), "repo.asc")
	if err := os.WriteFile(keyPath, pub.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write key: %v", err)
	}

	var index bytes.Buffer
	for name, data := range debs {
		sum := sha256.Sum256(data)
		fmt.Fprintf(&index, "Package: %s\n", strings.SplitN(filepath.Base(name), "_", 2)[0])
		fmt.Fprintf(&index, "Filename: ./%s\n", name)
		fmt.Fprintf(&index, "Size: %d\n", len(data))
		fmt.Fprintf(&index, "SHA256: %s\n\n", hex.EncodeToString(sum[:]))
	}

	var packagesXZ bytes.Buffer
	xw, err := xz.NewWriter(&packagesXZ)
	if err != nil {
		t.Fatalf("Failed to create xz writer: %v", err)
	}
	xw.Write(index.Bytes())
	if err := xw.Close(); err != nil {
		t.Fatalf("Failed to compress index: %v", err)
	}

	md5sum := md5.Sum(packagesXZ.Bytes())
	sha := sha256.Sum256(packagesXZ.Bytes())
	release := fmt.Sprintf("Origin: Integration\nCodename: ios\nMD5Sum:\n %s %d Packages.xz\nSHA256:\n %s %d Packages.xz\n",
		hex.EncodeToString(md5sum[:]), packagesXZ.Len(),
		hex.EncodeToString(sha[:]), packagesXZ.Len())

	var inRelease bytes.Buffer
	cw, err := clearsign.Encode(&inRelease, entity.PrivateKey, nil)
	if err != nil {
		t.Fatalf("Failed to sign release: %v", err)
	}
	cw.Write([]byte(release))
	if err := cw.Close(); err != nil {
		t.Fatalf("Failed to sign release: %v", err)
	}

	served := map[string][]byte{
		"/Packages.xz": packagesXZ.Bytes(),
		"/InRelease":   inRelease.Bytes(),
	}
	for name, data := range debs {
		served["/"+name] = data
	}

	repo := &repository{keyPath: keyPath, debs: debs, count: make(map[string]int)}
	repo.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		repo.mu.Lock()
		repo.count[req.URL.Path]++
		repo.mu.Unlock()

		data, ok := served[req.URL.Path]
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(repo.server.Close)

	return repo
}

func run(bin string, args ...string) (string, error) {
	cmd := exec.Command(bin, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func getProjectRoot() (string, error) {
	// Try to find go.mod
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find project root (go.mod)")
}

func buildDebmirror(projectRoot, output string) error {
	cmd := exec.Command("go", "build", "-o", output, "./cmd/debmirror")
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
