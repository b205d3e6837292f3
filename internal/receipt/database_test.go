package receipt

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"

	"github.com/zombor/receipt-catcher/internal/delivery"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("LoadDeliveryConfig", func() {
		When("nothing has been saved", func() {
			It("should return the default config", func() {
				cfg, err := db.LoadDeliveryConfig()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).To(Equal(delivery.DefaultConfig()))
			})
		})

		When("the stored value is corrupt", func() {
			BeforeEach(func() {
				Expect(db.db.Update(func(tx *bbolt.Tx) error {
					return tx.Bucket([]byte(settingsBucketName)).Put([]byte(deliveryConfigKey), []byte("{not json"))
				})).To(Succeed())
			})

			It("should return an error and the default config", func() {
				cfg, err := db.LoadDeliveryConfig()
				Expect(err).To(MatchError(ContainSubstring("unmarshaling delivery config")))
				Expect(cfg).To(Equal(delivery.DefaultConfig()))
			})
		})
	})

	Describe("SaveDeliveryConfig", func() {
		var cfg delivery.Config

		BeforeEach(func() {
			cfg = delivery.Config{
				ServiceID:  "service_abc",
				TemplateID: "template_xyz",
				PublicKey:  "pk_123",
				ToEmail:    "books@example.com",
				Subject:    "March receipts",
			}
			Expect(db.SaveDeliveryConfig(cfg)).To(Succeed())
		})

		It("should round trip all five fields", func() {
			loaded, err := db.LoadDeliveryConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("should store the value under the emailConfig key", func() {
			var raw []byte
			Expect(db.db.View(func(tx *bbolt.Tx) error {
				raw = append([]byte(nil), tx.Bucket([]byte("settings")).Get([]byte("emailConfig"))...)
				return nil
			})).To(Succeed())
			Expect(raw).To(MatchJSON(`{
				"serviceId": "service_abc",
				"templateId": "template_xyz",
				"publicKey": "pk_123",
				"toEmail": "books@example.com",
				"subject": "March receipts"
			}`))
		})

		It("should keep an empty subject as saved", func() {
			cfg.Subject = ""
			Expect(db.SaveDeliveryConfig(cfg)).To(Succeed())
			loaded, err := db.LoadDeliveryConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Subject).To(BeEmpty())
		})

		It("should survive reopening the database", func() {
			Expect(db.Close()).To(Succeed())
			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			loaded, err := db.LoadDeliveryConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})
	})

	Describe("NewBoltDB", func() {
		It("should fail for a path in a missing directory", func() {
			_, err := NewBoltDB(filepath.Join(GinkgoT().TempDir(), "missing", "test.db"))
			Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
		})
	})
})
