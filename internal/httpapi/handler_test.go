package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stupiduntilnot/lyra/internal/completion"
	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/continuation"
	"github.com/stupiduntilnot/lyra/internal/control"
	"github.com/stupiduntilnot/lyra/internal/dummy"
	"github.com/stupiduntilnot/lyra/internal/fallback"
	"github.com/stupiduntilnot/lyra/internal/httpapi"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
	"github.com/stupiduntilnot/lyra/internal/persona"
	"github.com/stupiduntilnot/lyra/internal/session"
	"github.com/stupiduntilnot/lyra/internal/transcript"
)

func newSession(script string) *session.Session {
	p, err := dummy.NewProvider("dummy-model", script)
	Expect(err).NotTo(HaveOccurred())
	noSleep := func(context.Context, time.Duration) error { return nil }
	router := fallback.NewRouter(fallback.Route{
		Name:       modelpkg.RoutePrimary,
		Client:     completion.NewClient(p, control.DefaultPolicy(), noSleep),
		Credential: "OPENAI_API_KEY",
	})
	pers := persona.Default()
	ctrl := continuation.NewController(router, ctxpkg.NewSliceBuilder(60, 20), control.DefaultPolicy(), pers.Name)
	return session.New(transcript.NewStore(pers, 0, 0), ctrl, session.Options{
		ID:     "test",
		Params: continuation.Params{Temperature: 0.7, MaxTokens: 800},
	})
}

func do(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var _ = Describe("Handler", func() {
	var (
		router *gin.Engine
		sess   *session.Session
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		sess = newSession("msg:いらっしゃい。")
		router = gin.New()
		httpapi.SetupRoutes(router, httpapi.NewHandler(sess))
	})

	It("reports health", func() {
		w := do(router, http.MethodGet, "/health", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("ok"))
	})

	Describe("POST /api/v1/submit", func() {
		It("returns the reply and meta, and grows the transcript by two", func() {
			body, _ := json.Marshal(httpapi.SubmitRequest{Text: "こんばんは"})
			w := do(router, http.MethodPost, "/api/v1/submit", body)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp httpapi.SubmitResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Reply).To(Equal("いらっしゃい。"))
			Expect(resp.Meta).NotTo(BeNil())
			Expect(resp.Meta.Route).To(Equal(modelpkg.RoutePrimary))
			Expect(sess.Export()).To(HaveLen(3))
		})

		It("rejects empty text without touching the transcript", func() {
			body, _ := json.Marshal(httpapi.SubmitRequest{Text: "   "})
			w := do(router, http.MethodPost, "/api/v1/submit", body)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(sess.Export()).To(HaveLen(1))
		})

		It("returns 400 on invalid request body", func() {
			w := do(router, http.MethodPost, "/api/v1/submit", []byte(`{`))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/transcript", func() {
		It("hides the system message", func() {
			body, _ := json.Marshal(httpapi.SubmitRequest{Text: "hi"})
			do(router, http.MethodPost, "/api/v1/submit", body)

			w := do(router, http.MethodGet, "/api/v1/transcript", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			var resp httpapi.TranscriptResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Busy).To(BeFalse())
			Expect(resp.Messages).To(HaveLen(2))
			Expect(resp.Messages[0].Role).To(Equal(ctxpkg.RoleUser))
		})
	})

	Describe("export and import", func() {
		It("round-trips the transcript", func() {
			body, _ := json.Marshal(httpapi.SubmitRequest{Text: "hi"})
			do(router, http.MethodPost, "/api/v1/submit", body)

			exported := do(router, http.MethodGet, "/api/v1/export", nil)
			Expect(exported.Code).To(Equal(http.StatusOK))
			Expect(exported.Header().Get("Content-Disposition")).To(ContainSubstring("attachment"))

			Expect(do(router, http.MethodPost, "/api/v1/reset", nil).Code).To(Equal(http.StatusNoContent))
			Expect(sess.Export()).To(HaveLen(1))

			w := do(router, http.MethodPost, "/api/v1/import", exported.Body.Bytes())
			Expect(w.Code).To(Equal(http.StatusOK))
			var resp httpapi.ImportResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Imported).To(Equal(3))
			Expect(resp.Length).To(Equal(3))
		})

		It("appends without duplicating the system message", func() {
			upload := []byte(`[
				{"role": "system", "content": "other"},
				{"role": "user", "content": "a"},
				{"role": "assistant", "content": "b"}, // trailing comma below
			]`)
			w := do(router, http.MethodPost, "/api/v1/import?mode=append", upload)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(sess.Export()).To(HaveLen(3))
			Expect(sess.Export()[0].Content).To(Equal(persona.Default().SystemPrompt))
		})

		It("rejects records missing content", func() {
			w := do(router, http.MethodPost, "/api/v1/import", []byte(`[{"role":"user"}]`))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(sess.Export()).To(HaveLen(1))
		})

		It("rejects a non-array body", func() {
			w := do(router, http.MethodPost, "/api/v1/import", []byte(`{"role":"user","content":"x"}`))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unknown mode", func() {
			w := do(router, http.MethodPost, "/api/v1/import?mode=merge", []byte(`[]`))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/meta", func() {
		It("is 404 before any turn", func() {
			Expect(do(router, http.MethodGet, "/api/v1/meta", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("returns the last call meta after a turn", func() {
			body, _ := json.Marshal(httpapi.SubmitRequest{Text: "hi"})
			do(router, http.MethodPost, "/api/v1/submit", body)

			w := do(router, http.MethodGet, "/api/v1/meta", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			var meta modelpkg.CallMeta
			Expect(json.Unmarshal(w.Body.Bytes(), &meta)).To(Succeed())
			Expect(meta.Model).To(Equal("dummy-model"))
			Expect(meta.ContextLimit).To(Equal(60))
		})
	})

	It("serves the persona's starter hint", func() {
		w := do(router, http.MethodGet, "/api/v1/persona", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp httpapi.PersonaResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Name).To(Equal(persona.Default().Name))
		Expect(resp.StarterHint).NotTo(BeEmpty())
	})
})

var _ = Describe("Handler with a failing provider", func() {
	It("still answers 200 with an in-persona failure reply", func() {
		gin.SetMode(gin.TestMode)
		sess := newSession("status:401")
		router := gin.New()
		httpapi.SetupRoutes(router, httpapi.NewHandler(sess))

		body, _ := json.Marshal(httpapi.SubmitRequest{Text: "hi"})
		w := do(router, http.MethodPost, "/api/v1/submit", body)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp httpapi.SubmitResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Reply).To(ContainSubstring("OPENAI_API_KEY"))
		Expect(resp.Meta.ErrorKind).To(Equal(modelpkg.ErrorAuth))
		Expect(sess.Export()).To(HaveLen(3))
	})
})

type busySession struct {
	httpapi.Session
}

func (busySession) Submit(context.Context, string) (string, error) {
	return "", session.ErrBusy
}

func (busySession) Reset(context.Context) error {
	return session.ErrBusy
}

var _ = Describe("Handler while busy", func() {
	It("returns 409 for submit and reset", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		httpapi.SetupRoutes(router, httpapi.NewHandler(busySession{}))

		body, _ := json.Marshal(httpapi.SubmitRequest{Text: "hi"})
		Expect(do(router, http.MethodPost, "/api/v1/submit", body).Code).To(Equal(http.StatusConflict))
		Expect(do(router, http.MethodPost, "/api/v1/reset", nil).Code).To(Equal(http.StatusConflict))
	})
})
