package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-catcher/internal/delivery"
)

var _ = Describe("Server", func() {
	var (
		ts          *testSession
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		server = NewServerWithMux(ts.service, auth, http.NewServeMux())
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		// Route every request through the server so tests can make several calls
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	multipartBody := func(files map[string]string) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for name, content := range files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
			h.Set("Content-Type", "image/png")
			part, err := w.CreatePart(h)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte(content))
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(w.Close()).To(Succeed())
		return &buf, w.FormDataContentType()
	}

	uploadFiles := func(files map[string]string) *http.Response {
		body, contentType := multipartBody(files)
		return do("POST", "/api/images", body, contentType)
	}

	BeforeEach(func() {
		ts = newTestSession(2, nil)
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		Expect(ts.service.Close()).To(Succeed())
	})

	Describe("handleIndex", func() {
		It("should return the HTML interface", func() {
			resp := do("GET", "/", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html; charset=utf-8"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Receipt Catcher"))
		})

		It("should reject other methods", func() {
			resp := do("POST", "/", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("static assets", func() {
		It("should serve the script and stylesheet", func() {
			resp := do("GET", "/static/app.js", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/javascript; charset=utf-8"))

			resp = do("GET", "/static/app.css", nil, "")
			resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/css"))
		})

		It("should offer select and deselect all on the review step", func() {
			resp := do("GET", "/", nil, "")
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`id="select-all"`))
			Expect(string(body)).To(ContainSubstring(`id="deselect-all"`))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/config", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := do("GET", "/api/state", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Receipt Catcher"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/state", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/state", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("handleGetState", func() {
		It("should return the empty wizard", func() {
			resp := do("GET", "/api/state", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var session Session
			decode(resp, &session)
			Expect(session.Step).To(BeEquivalentTo("upload"))
			Expect(session.Images).To(BeEmpty())
			Expect(session.Processing).To(BeFalse())
			Expect(session.Config.Subject).To(Equal(delivery.DefaultSubject))
		})
	})

	Describe("handleUploadImages", func() {
		It("should accept the files and start processing", func() {
			resp := uploadFiles(map[string]string{"a.png": "receipt-a", "b.png": "cat"})
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			var session Session
			decode(resp, &session)
			Expect(session.Images).To(HaveLen(2))
			for _, img := range session.Images {
				Expect(img.IsSelected).To(BeTrue())
				Expect(img.PreviewURL).To(Equal("/api/images/" + img.ID + "/preview"))
			}
		})

		It("should classify the uploaded images", func() {
			uploadFiles(map[string]string{"a.png": "receipt-a"}).Body.Close()
			Eventually(ts.settled()).Should(BeZero())

			resp := do("GET", "/api/state", nil, "")
			var session Session
			decode(resp, &session)
			Expect(session.Images).To(HaveLen(1))
			Expect(*session.Images[0].IsReceipt).To(BeTrue())
			Expect(session.ReceiptCount).To(Equal(1))
			Expect(session.QualifyingCount).To(Equal(1))
		})

		It("should reject a form without files", func() {
			body, contentType := multipartBody(nil)
			resp := do("POST", "/api/images", body, contentType)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a body that is not a form", func() {
			resp := do("POST", "/api/images", strings.NewReader("nope"), "text/plain")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetPreview", func() {
		It("should return the preview bytes", func() {
			uploadFiles(map[string]string{"a.png": "receipt-a"}).Body.Close()
			Eventually(ts.settled()).Should(BeZero())

			resp := do("GET", "/api/images/img-1/preview", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("small-receipt-a")))
		})

		It("should return 404 for unknown images", func() {
			resp := do("GET", "/api/images/missing/preview", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleSetSelection", func() {
		BeforeEach(func() {
			uploadFiles(map[string]string{"a.png": "receipt-a"}).Body.Close()
		})

		It("should update the selection", func() {
			resp := do("POST", "/api/images/img-1/selection", strings.NewReader(`{"selected": false}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var session Session
			decode(resp, &session)
			Expect(session.Images[0].IsSelected).To(BeFalse())
			Expect(session.SelectedCount).To(BeZero())
		})

		It("should let images that are not receipts be selected", func() {
			uploadFiles(map[string]string{"b.png": "cat"}).Body.Close()
			Eventually(ts.settled()).Should(BeZero())
			do("POST", "/api/images/img-2/selection", strings.NewReader(`{"selected": false}`), "application/json").Body.Close()

			resp := do("POST", "/api/images/img-2/selection", strings.NewReader(`{"selected": true}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var session Session
			decode(resp, &session)
			Expect(session.Images).To(HaveLen(2))
			Expect(*session.Images[1].IsReceipt).To(BeFalse())
			Expect(session.Images[1].IsSelected).To(BeTrue())
			Expect(session.SelectedCount).To(Equal(2))
			Expect(session.QualifyingCount).To(Equal(1))
		})

		It("should return 404 for unknown images", func() {
			resp := do("POST", "/api/images/img-9/selection", strings.NewReader(`{"selected": true}`), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should require the selected flag", func() {
			resp := do("POST", "/api/images/img-1/selection", strings.NewReader(`{}`), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleClearImages", func() {
		It("should empty the list", func() {
			uploadFiles(map[string]string{"a.png": "receipt-a"}).Body.Close()
			resp := do("DELETE", "/api/images", nil, "")
			var session Session
			decode(resp, &session)
			Expect(session.Images).To(BeEmpty())
		})
	})

	Describe("config", func() {
		It("should apply partial updates and persist them", func() {
			resp := do("PUT", "/api/config", strings.NewReader(`{"toEmail": "me@example.com"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var cfg delivery.Config
			decode(resp, &cfg)
			Expect(cfg.ToEmail).To(Equal("me@example.com"))
			Expect(cfg.Subject).To(Equal(delivery.DefaultSubject))

			saved, _ := ts.db.saved()
			Expect(saved).To(Equal(cfg))

			resp = do("GET", "/api/config", nil, "")
			var fetched delivery.Config
			decode(resp, &fetched)
			Expect(fetched).To(Equal(cfg))
		})

		It("should reject malformed bodies", func() {
			resp := do("PUT", "/api/config", strings.NewReader(`{`), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("wizard navigation", func() {
		It("should move between steps", func() {
			resp := do("POST", "/api/wizard/next", nil, "")
			var session Session
			decode(resp, &session)
			Expect(session.Step).To(BeEquivalentTo("review"))

			resp = do("POST", "/api/wizard/back", nil, "")
			decode(resp, &session)
			Expect(session.Step).To(BeEquivalentTo("upload"))
		})
	})

	Describe("handleSend", func() {
		When("nothing qualifies", func() {
			It("should fail with the reason", func() {
				resp := do("POST", "/api/send", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var report delivery.Report
				decode(resp, &report)
				Expect(report).To(Equal(delivery.Report{Success: false, Message: "No valid receipts selected"}))
			})

			It("should leave a dismissable notice", func() {
				do("POST", "/api/send", nil, "").Body.Close()

				resp := do("GET", "/api/state", nil, "")
				var session Session
				decode(resp, &session)
				Expect(session.Notice).NotTo(BeNil())
				Expect(session.Notice.Message).To(Equal("No valid receipts selected"))

				resp = do("DELETE", "/api/notice", nil, "")
				var dismissed Session
				decode(resp, &dismissed)
				Expect(dismissed.Notice).To(BeNil())
			})
		})

		When("receipts are ready", func() {
			BeforeEach(func() {
				body, _ := json.Marshal(validDeliveryConfig())
				do("PUT", "/api/config", bytes.NewReader(body), "application/json").Body.Close()
				uploadFiles(map[string]string{"a.png": "receipt-a", "b.png": "receipt-b"}).Body.Close()
				Eventually(ts.settled()).Should(BeZero())
			})

			It("should send them and report success", func() {
				resp := do("POST", "/api/send", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var report delivery.Report
				decode(resp, &report)
				Expect(report).To(Equal(delivery.Report{Success: true, Message: "Successfully sent 2 receipt(s) to a@b.co"}))
				Expect(ts.mailer.count()).To(Equal(2))
			})

			It("should finish sending after the client goes away", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				req := httptest.NewRequest("POST", "/api/send", nil).WithContext(ctx)
				rec := httptest.NewRecorder()

				server.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(ts.mailer.count()).To(Equal(2))
			})
		})
	})

	Describe("metrics", func() {
		It("should expose Prometheus metrics", func() {
			resp := do("GET", "/metrics", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
