package hostfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DirFS", func() {
	var (
		outside string
		root    string
		dirFS   *DirFS
	)

	BeforeEach(func() {
		base := GinkgoT().TempDir()
		root = filepath.Join(base, "root")
		outside = filepath.Join(base, "outside")

		Expect(os.Mkdir(root, 0o755)).To(Succeed())
		Expect(os.Mkdir(outside, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(outside, "secret"),
			[]byte("secret"), 0o644)).To(Succeed())

		var err error
		dirFS, err = NewDirFS(root)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse a root that is not a directory", func() {
		_, err := NewDirFS(filepath.Join(outside, "secret"))

		Expect(err).To(HaveOccurred())
	})

	It("should create and read files inside the root", func() {
		f, err := dirFS.OpenFile("hello.txt", os.O_CREATE|os.O_RDWR, 0o644)
		Expect(err).NotTo(HaveOccurred())

		_, err = f.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		content, err := os.ReadFile(filepath.Join(root, "hello.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("hello"))
	})

	It("should refuse invalid paths", func() {
		_, err := dirFS.Stat("../outside/secret")

		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())
	})

	It("should refuse links that lead outside the root", func() {
		Expect(os.Symlink(filepath.Join(outside, "secret"),
			filepath.Join(root, "link"))).To(Succeed())

		_, err := dirFS.OpenFile("link", os.O_RDONLY, 0)
		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())

		_, err = dirFS.Stat("link")
		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())
	})

	It("should refuse directory links that lead outside the root", func() {
		Expect(os.Symlink(outside, filepath.Join(root, "dir"))).To(Succeed())

		_, err := dirFS.OpenFile("dir/secret", os.O_RDONLY, 0)

		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())
	})

	It("should refuse to create files through dangling links", func() {
		created := filepath.Join(outside, "created")
		Expect(os.Symlink(created, filepath.Join(root, "evil"))).To(Succeed())

		_, err := NewSandbox(dirFS).OpenFile("/evil",
			os.O_CREATE|os.O_WRONLY, 0o644)

		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())
		_, err = os.Lstat(created)
		Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
	})

	It("should refuse relative dangling links and chains of links", func() {
		Expect(os.Symlink("../outside/made", filepath.Join(root, "rel"))).
			To(Succeed())
		Expect(os.Symlink("rel", filepath.Join(root, "chain"))).To(Succeed())

		_, err := dirFS.OpenFile("rel", os.O_CREATE|os.O_WRONLY, 0o644)
		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())

		_, err = dirFS.OpenFile("chain", os.O_CREATE|os.O_WRONLY, 0o644)
		Expect(errors.Is(err, fs.ErrPermission)).To(BeTrue())

		_, err = os.Lstat(filepath.Join(outside, "made"))
		Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
	})

	It("should create files through dangling links inside the root", func() {
		Expect(os.Symlink("fresh", filepath.Join(root, "pending"))).
			To(Succeed())

		f, err := dirFS.OpenFile("pending", os.O_CREATE|os.O_WRONLY, 0o644)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		_, err = os.Stat(filepath.Join(root, "fresh"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should allow links that stay inside the root", func() {
		Expect(os.WriteFile(filepath.Join(root, "data"),
			[]byte("data"), 0o644)).To(Succeed())
		Expect(os.Symlink("data", filepath.Join(root, "alias"))).To(Succeed())

		f, err := dirFS.OpenFile("alias", os.O_RDONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		content, err := io.ReadAll(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("data"))

		target, err := dirFS.Readlink("alias")
		Expect(err).NotTo(HaveOccurred())
		Expect(target).To(Equal("data"))

		info, err := dirFS.Lstat("alias")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode() & fs.ModeSymlink).NotTo(BeZero())
	})

	It("should manage directories and names", func() {
		Expect(dirFS.Mkdir("d", 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "d", "a"),
			[]byte("a"), 0o644)).To(Succeed())

		Expect(dirFS.Rename("d/a", "d/b")).To(Succeed())
		Expect(dirFS.Link("d/b", "d/c")).To(Succeed())

		entries, err := dirFS.ReadDir("d")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))

		Expect(dirFS.Remove("d/b")).To(Succeed())
		Expect(dirFS.Remove("d/c")).To(Succeed())
		Expect(dirFS.Remove("d")).To(Succeed())

		_, err = dirFS.Stat("d")
		Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
	})
})
