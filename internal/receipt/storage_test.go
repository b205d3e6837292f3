package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "previews"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create the base directory", func() {
		info, err := os.Stat(filepath.Join(tmpDir, "previews"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	Describe("Save and Get", func() {
		BeforeEach(func() {
			Expect(storage.Save("abc-1", []byte("preview bytes"))).To(Succeed())
		})

		It("should write the file to disk", func() {
			data, err := os.ReadFile(filepath.Join(tmpDir, "previews", "abc-1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("preview bytes")))
		})

		It("should read it back", func() {
			data, err := storage.Get("abc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("preview bytes")))
		})

		It("should keep keys inside the base directory", func() {
			Expect(storage.Save("../escape", []byte("x"))).To(Succeed())
			_, err := os.Stat(filepath.Join(tmpDir, "escape"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("Get", func() {
		It("should report missing blobs", func() {
			_, err := storage.Get("missing")
			Expect(err).To(MatchError(ErrBlobNotFound))
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			Expect(storage.Save("abc-1", []byte("x"))).To(Succeed())
			Expect(storage.Delete("abc-1")).To(Succeed())
			_, err := storage.Get("abc-1")
			Expect(err).To(MatchError(ErrBlobNotFound))
		})

		It("should fail for a missing file", func() {
			Expect(storage.Delete("missing")).To(MatchError(ContainSubstring("deleting file")))
		})
	})
})

var _ = Describe("MemoryStorage", func() {
	var storage *MemoryStorage

	BeforeEach(func() {
		storage = NewMemoryStorage()
	})

	It("should round trip blobs", func() {
		Expect(storage.Save("k", []byte("v"))).To(Succeed())
		data, err := storage.Get("k")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("v")))
		Expect(storage.Len()).To(Equal(1))
	})

	It("should copy the saved data", func() {
		data := []byte("v")
		Expect(storage.Save("k", data)).To(Succeed())
		data[0] = 'x'
		stored, _ := storage.Get("k")
		Expect(stored).To(Equal([]byte("v")))
	})

	It("should report missing blobs", func() {
		_, err := storage.Get("missing")
		Expect(err).To(MatchError(ErrBlobNotFound))
		Expect(storage.Delete("missing")).To(MatchError(ErrBlobNotFound))
	})

	It("should delete blobs", func() {
		Expect(storage.Save("k", []byte("v"))).To(Succeed())
		Expect(storage.Delete("k")).To(Succeed())
		Expect(storage.Len()).To(BeZero())
	})
})
