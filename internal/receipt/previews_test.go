package receipt

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-catcher/internal/imaging"
)

var _ = Describe("PreviewStore", func() {
	var (
		storage  *MemoryStorage
		previews *PreviewStore
		dataURL  string
	)

	BeforeEach(func() {
		storage = NewMemoryStorage()
		previews = NewPreviewStore(storage)
		var err error
		dataURL, err = imaging.DataURL(imaging.Payload{ContentType: "image/png", Data: []byte("png-bytes")})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Put", func() {
		It("should store the decoded bytes and content type", func() {
			Expect(previews.Put("a-1", dataURL)).To(Succeed())
			data, contentType, err := previews.Get("a-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png-bytes")))
			Expect(contentType).To(Equal("image/png"))
			Expect(previews.Live()).To(Equal(1))
		})

		It("should reject anything but a data URL", func() {
			Expect(previews.Put("a-1", "blob:abc")).To(MatchError(ContainSubstring("decoding preview")))
			Expect(previews.Live()).To(BeZero())
		})
	})

	Describe("Release", func() {
		BeforeEach(func() {
			Expect(previews.Put("a-1", dataURL)).To(Succeed())
		})

		It("should release a preview exactly once", func() {
			Expect(previews.Release("a-1")).To(BeTrue())
			Expect(previews.Release("a-1")).To(BeFalse())
			Expect(previews.Released("a-1")).To(BeTrue())
		})

		It("should delete the stored blob", func() {
			previews.Release("a-1")
			Expect(storage.Len()).To(BeZero())
			_, _, err := previews.Get("a-1")
			Expect(err).To(MatchError(ErrBlobNotFound))
		})

		It("should ignore unknown refs", func() {
			Expect(previews.Release("nope")).To(BeFalse())
			Expect(previews.Released("nope")).To(BeFalse())
		})
	})

	Describe("OnChange", func() {
		It("should report the live count", func() {
			var counts []int
			previews.OnChange(func(live int) { counts = append(counts, live) })
			Expect(previews.Put("a-1", dataURL)).To(Succeed())
			Expect(previews.Put("a-2", dataURL)).To(Succeed())
			previews.Release("a-1")
			Expect(counts).To(Equal([]int{1, 2, 1}))
		})
	})
})
