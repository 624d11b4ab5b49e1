package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/credexam/certification-api/cmd/server/internal/attempts"
	"github.com/credexam/certification-api/cmd/server/internal/middleware"
	"github.com/credexam/certification-api/cmd/server/internal/migrations"
	"github.com/credexam/certification-api/cmd/server/internal/routes"
	routesv1 "github.com/credexam/certification-api/cmd/server/internal/routes/v1"
	"github.com/credexam/certification-api/internal/artifactgen"
	"github.com/credexam/certification-api/internal/artifactjob"
	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/config"
	"github.com/credexam/certification-api/internal/grading"
	"github.com/credexam/certification-api/internal/hash"
	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/otel"
	"github.com/credexam/certification-api/internal/render"
	"github.com/credexam/certification-api/internal/types"
)

const authToken = "i am a very secure password"

var (
	candidate        models.Candidate
	candidateNoCert  models.Candidate
	exam             models.Exam
	questionChoice   models.Question
	questionText     models.Question
	voucherActive    models.Voucher
	voucherExpired   models.Voucher
	voucherExhausted models.Voucher
	auth             models.Auth
	auth2            models.Auth
	authInactive     models.Auth
)

// memoryStore is an in-memory artifact store for exercising the full
// generation pipeline without blob storage infrastructure.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Upload(
	_ context.Context,
	reader io.ReadSeeker,
	length int64,
	path string,
) (artifactstore.UploadResult, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return artifactstore.UploadResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = content

	return artifactstore.UploadResult{
		Path:   path,
		SHA256: hash.Buffer(content),
		Size:   length,
	}, nil
}

func (m *memoryStore) Download(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.objects[path]
	if !ok {
		return nil, artifactstore.ErrNotFound
	}
	return content, nil
}

func (m *memoryStore) SignedURL(
	_ context.Context,
	path string,
	_ time.Duration,
) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[path]; !ok {
		return "", artifactstore.ErrNotFound
	}
	return "https://signed.example.com/" + path, nil
}

func (m *memoryStore) RequestRehydration(
	_ context.Context,
	_ string,
	_ artifactstore.RehydrationPriority,
) (artifactstore.RehydrationStatus, error) {
	return artifactstore.RehydrationStatus{}, nil
}

func (m *memoryStore) Status(
	_ context.Context,
	path string,
) (artifactstore.ObjectStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.objects[path]
	if !ok {
		return artifactstore.ObjectStatus{}, artifactstore.ErrNotFound
	}
	return artifactstore.ObjectStatus{
		Exists:      true,
		Tier:        artifactstore.TierCool,
		Size:        int64(len(content)),
		ContentType: artifactstore.ContentTypePDF,
	}, nil
}

func (m *memoryStore) StoreIdentifier(_ context.Context) (string, error) {
	return "memory", nil
}

func seedDB(db *gorm.DB) error {
	candidate = models.Candidate{
		Name:              "Dana Smith",
		Email:             "dana@example.com",
		CertificateOption: true,
	}
	if err := db.Create(&candidate).Error; err != nil {
		return err
	}

	candidateNoCert = models.Candidate{
		Name:  "Robin Lee",
		Email: "robin@example.com",
	}
	if err := db.Create(&candidateNoCert).Error; err != nil {
		return err
	}

	exam = models.Exam{
		Title:        "Go Fundamentals",
		ClassCode:    "GO-101",
		PassingScore: 70,
		DurationMins: 60,
	}
	if err := db.Create(&exam).Error; err != nil {
		return err
	}

	category := models.Category{Name: "Language Basics", ExamID: exam.ID, Weight: 100}
	if err := db.Create(&category).Error; err != nil {
		return err
	}

	topic := models.Topic{Name: "Syntax", CategoryID: category.ID}
	if err := db.Create(&topic).Error; err != nil {
		return err
	}

	questionChoice = models.Question{
		Type:      string(grading.ItemSingleChoice),
		TopicID:   topic.ID,
		AnswerKey: models.AnswerKey{Option: "B"},
		Points:    10,
	}
	if err := db.Create(&questionChoice).Error; err != nil {
		return err
	}

	questionText = models.Question{
		Type:        string(grading.ItemFillBlank),
		ScoringMode: string(grading.ScoringSimilarity),
		TopicID:     topic.ID,
		AnswerKey:   models.AnswerKey{Text: "Paris"},
		Points:      10,
	}
	if err := db.Create(&questionText).Error; err != nil {
		return err
	}

	voucherActive = models.Voucher{
		Status:         types.VoucherStatusActive,
		CandidateID:    candidate.ID,
		ExamID:         exam.ID,
		Opportunities:  10,
		ExpirationDate: time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	voucherExpired = models.Voucher{
		Status:         types.VoucherStatusActive,
		CandidateID:    candidate.ID,
		ExamID:         exam.ID,
		Opportunities:  2,
		ExpirationDate: time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	voucherExhausted = models.Voucher{
		Status:            types.VoucherStatusUsed,
		CandidateID:       candidate.ID,
		ExamID:            exam.ID,
		Opportunities:     1,
		OpportunitiesUsed: 1,
		ExpirationDate:    time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, v := range []*models.Voucher{&voucherActive, &voucherExpired, &voucherExhausted} {
		if err := db.Create(v).Error; err != nil {
			return err
		}
	}

	tokenHash, err := argon2id.CreateHash(authToken, argon2id.DefaultParams)
	if err != nil {
		return err
	}

	auth = models.Auth{
		Token:       tokenHash,
		Note:        "very testing candidate",
		CandidateID: candidate.ID,
		Active:      models.NewNullFromData(true),
	}
	auth2 = models.Auth{
		Token:       tokenHash,
		Note:        "very testing candidate 2",
		CandidateID: candidateNoCert.ID,
		Active:      models.NewNullFromData(true),
	}
	authInactive = models.Auth{
		Token:       tokenHash,
		Note:        "very inactive auth",
		CandidateID: candidate.ID,
		Active:      models.NewNullFromData(false),
	}
	return db.Create([]*models.Auth{&auth, &auth2, &authInactive}).Error
}

type ServerTestSuite struct {
	suite.Suite

	store        *memoryStore
	postgres     *postgres.PostgresContainer
	db           *gorm.DB
	tx           *gorm.DB
	otelShutdown func(context.Context) error
	server       *httptest.Server
}

func (s *ServerTestSuite) SetupSuite() {
	logger.InitSlog()

	postgresContainer, err := postgres.Run(
		s.T().Context(),
		"postgres:16.4-alpine",
		postgres.WithDatabase("certificationapi"),
		postgres.WithUsername("certificationapi"),
		postgres.WithPassword("certificationapi"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	s.Require().NoError(err, "failed to start postgres container")
	s.postgres = postgresContainer

	dsn, err := s.postgres.ConnectionString(s.T().Context())
	s.Require().NoError(err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn))
	s.Require().NoError(err, "failed to connect to the database")
	s.db = db

	err = migrations.Up(s.T().Context(), db)
	s.Require().NoError(err, "failed to run up migrations")

	s.Require().NoError(seedDB(db), "failed to seed db")

	shutdownOTel, err := otel.SetupOTelSDK(s.T().Context(), false)
	s.Require().NoError(err, "could not setup otel")
	s.otelShutdown = shutdownOTel
}

func (s *ServerTestSuite) SetupTest() {
	s.store = newMemoryStore()
	s.tx = s.db.Begin()

	// No queue configured: the producer refuses every job and the service
	// falls back to the synchronous generator, exercising the full pipeline
	generator := artifactgen.NewGenerator(
		s.tx,
		s.store,
		render.NewPDFRenderer(),
		nil,
		5*time.Minute,
	)
	attemptService := attempts.NewService(
		s.tx,
		grading.NewEvaluator(0.8),
		artifactjob.NewProducer(nil),
		generator,
	)

	cfg := &config.Config{}
	v1Handler := routesv1.NewHandler(s.tx, attemptService, s.store, cfg)
	middlewareHandler := middleware.Handler{DB: s.tx}

	e, err := routes.BuildEcho(logger.Logger)
	s.Require().NoError(err, "failed to construct router")

	v1Handler.AddRoutes(e, &middlewareHandler)

	s.server = httptest.NewServer(e)
}

func (s *ServerTestSuite) TearDownTest() {
	s.Require().NoError(s.tx.Rollback().Error)
	s.server.Close()
}

func (s *ServerTestSuite) TearDownSuite() {
	s.Require().NoError(testcontainers.TerminateContainer(s.postgres))
	s.Require().NoError(s.otelShutdown(s.T().Context()))
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

type resp struct {
	body string
	code int
}

func doRequest(t *testing.T, req *http.Request) *resp {
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send http request")
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err, "failed to read body")

	return &resp{body: string(body), code: res.StatusCode}
}

func (s *ServerTestSuite) jsonRequest(
	method, path string,
	authRow *models.Auth,
	payload any,
) *http.Request {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(
		s.T().Context(),
		method,
		s.server.URL+path,
		body,
	)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if authRow != nil {
		req.SetBasicAuth(authRow.ID.String(), authToken)
	}
	return req
}

func (s *ServerTestSuite) startAttempt(voucherID string) types.StartAttemptResponse {
	req := s.jsonRequest(
		http.MethodPost,
		"/v1/attempts/",
		&auth,
		types.StartAttemptRequest{VoucherID: voucherID},
	)
	res := doRequest(s.T(), req)
	s.Require().Equal(http.StatusCreated, res.code, res.body)

	var started types.StartAttemptResponse
	s.Require().NoError(json.Unmarshal([]byte(res.body), &started))
	return started
}

func (s *ServerTestSuite) TestStartAttempt() {
	s.Run("Accepted", func() {
		started := s.startAttempt(voucherActive.ID.String())

		s.Equal(types.ResultStatusInProgress, started.Status)
		s.WithinDuration(started.StartedAt.Add(time.Hour), started.Deadline, time.Second)
	})

	s.Run("ExpiredVoucher", func() {
		req := s.jsonRequest(
			http.MethodPost,
			"/v1/attempts/",
			&auth,
			types.StartAttemptRequest{VoucherID: voucherExpired.ID.String()},
		)
		res := doRequest(s.T(), req)

		s.Equal(http.StatusForbidden, res.code, res.body)
		s.Contains(res.body, "expired")
	})

	s.Run("ExhaustedVoucher", func() {
		req := s.jsonRequest(
			http.MethodPost,
			"/v1/attempts/",
			&auth,
			types.StartAttemptRequest{VoucherID: voucherExhausted.ID.String()},
		)
		res := doRequest(s.T(), req)

		s.Equal(http.StatusForbidden, res.code, res.body)
		s.Contains(res.body, "no_opportunities")
	})

	s.Run("SomeoneElsesVoucher", func() {
		req := s.jsonRequest(
			http.MethodPost,
			"/v1/attempts/",
			&auth2,
			types.StartAttemptRequest{VoucherID: voucherActive.ID.String()},
		)
		res := doRequest(s.T(), req)

		s.Equal(http.StatusNotFound, res.code, res.body)
	})

	s.Run("InactiveAuth", func() {
		req := s.jsonRequest(
			http.MethodPost,
			"/v1/attempts/",
			&authInactive,
			types.StartAttemptRequest{VoucherID: voucherActive.ID.String()},
		)
		res := doRequest(s.T(), req)

		s.Equal(http.StatusUnauthorized, res.code, res.body)
	})
}

func (s *ServerTestSuite) submitBody(choiceOption, text string) map[string]any {
	return map[string]any{
		"answers": map[string]any{
			questionChoice.ID.String(): map[string]any{"option": choiceOption},
			questionText.ID.String():   map[string]any{"text": text},
		},
	}
}

func (s *ServerTestSuite) TestSubmitAttempt() {
	s.Run("PassingSubmission", func() {
		started := s.startAttempt(voucherActive.ID.String())

		req := s.jsonRequest(
			http.MethodPost,
			fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
			&auth,
			s.submitBody("B", "paris "),
		)
		res := doRequest(s.T(), req)
		s.Require().Equal(http.StatusOK, res.code, res.body)

		var submitted types.SubmitAttemptResponse
		s.Require().NoError(json.Unmarshal([]byte(res.body), &submitted))

		s.Equal(types.ResultStatusCompleted, submitted.Status)
		s.EqualValues(100, submitted.Score)
		s.Equal(types.VerdictPass, submitted.Verdict)
		// Synchronous fallback ran during the request
		s.Equal(types.PDFStatusCompleted, submitted.PDFStatus)

		s.store.mu.Lock()
		stored := len(s.store.objects)
		s.store.mu.Unlock()
		// Report plus certificate for a passing candidate with the option
		s.Equal(2, stored)
	})

	s.Run("FailingSubmission", func() {
		started := s.startAttempt(voucherActive.ID.String())

		req := s.jsonRequest(
			http.MethodPost,
			fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
			&auth,
			s.submitBody("C", "London"),
		)
		res := doRequest(s.T(), req)
		s.Require().Equal(http.StatusOK, res.code, res.body)

		var submitted types.SubmitAttemptResponse
		s.Require().NoError(json.Unmarshal([]byte(res.body), &submitted))

		s.EqualValues(0, submitted.Score)
		s.Equal(types.VerdictFail, submitted.Verdict)
	})

	s.Run("DoubleSubmission", func() {
		started := s.startAttempt(voucherActive.ID.String())

		req := s.jsonRequest(
			http.MethodPost,
			fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
			&auth,
			s.submitBody("B", "Paris"),
		)
		res := doRequest(s.T(), req)
		s.Require().Equal(http.StatusOK, res.code, res.body)

		res = doRequest(s.T(), s.jsonRequest(
			http.MethodPost,
			fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
			&auth,
			s.submitBody("B", "Paris"),
		))
		s.Equal(http.StatusConflict, res.code, res.body)
	})
}

// Encodes the per-artifact lease discipline the worker relies on: jobs for
// different artifact types of one result must not block each other
// terminally, and a stored artifact is never re-claimed.
func (s *ServerTestSuite) TestArtifactClaims() {
	ctx := s.T().Context()
	stale := 5 * time.Minute

	result := models.Result{
		Status:          types.ResultStatusCompleted,
		PDFStatus:       types.PDFStatusPending,
		CandidateID:     candidate.ID,
		ExamID:          exam.ID,
		VoucherID:       voucherActive.ID,
		Score:           models.NewNullFromData(int64(100)),
		Verdict:         models.NewNullFromData(string(types.VerdictPass)),
		CertificateCode: "CERT-CLAIMTEST01",
		StartedAt:       time.Now().UTC().Add(-time.Hour),
		Deadline:        time.Now().UTC(),
	}
	s.Require().NoError(s.tx.Create(&result).Error)

	claimed, err := models.ClaimArtifactProcessing(
		ctx, s.tx, result.ID, types.ArtifactTypeEvaluationReport, stale,
	)
	s.Require().NoError(err)
	s.True(claimed, "first report claim wins")

	claimed, err = models.ClaimArtifactProcessing(
		ctx, s.tx, result.ID, types.ArtifactTypeEvaluationReport, stale,
	)
	s.Require().NoError(err)
	s.False(claimed, "a fresh lease excludes concurrent duplicates")

	claimed, err = models.ClaimArtifactProcessing(
		ctx, s.tx, result.ID, types.ArtifactTypeCertificate, stale,
	)
	s.Require().NoError(err)
	s.False(claimed, "a fresh lease defers the other artifact type to redelivery")

	s.Require().NoError(models.CompletePDF(
		ctx, s.tx, result.ID, types.ArtifactTypeEvaluationReport, "report.pdf",
	))

	claimed, err = models.ClaimArtifactProcessing(
		ctx, s.tx, result.ID, types.ArtifactTypeCertificate, stale,
	)
	s.Require().NoError(err)
	s.True(claimed, "the certificate proceeds once the report finished")

	claimed, err = models.ClaimArtifactProcessing(
		ctx, s.tx, result.ID, types.ArtifactTypeEvaluationReport, stale,
	)
	s.Require().NoError(err)
	s.False(claimed, "a stored artifact is never re-claimed")

	s.Require().NoError(models.CompletePDF(
		ctx, s.tx, result.ID, types.ArtifactTypeCertificate, "cert.pdf",
	))

	claimed, err = models.ClaimArtifactProcessing(
		ctx, s.tx, result.ID, types.ArtifactTypeCertificate, stale,
	)
	s.Require().NoError(err)
	s.False(claimed)
}

func (s *ServerTestSuite) TestVoucherLifecycle() {
	s.Run("ReleasedAfterSubmission", func() {
		started := s.startAttempt(voucherActive.ID.String())

		var midway models.Voucher
		s.Require().NoError(s.tx.First(&midway, voucherActive.ID).Error)
		s.Equal(types.VoucherStatusInProcess, midway.Status)

		res := doRequest(s.T(), s.jsonRequest(
			http.MethodPost,
			fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
			&auth,
			s.submitBody("B", "Paris"),
		))
		s.Require().Equal(http.StatusOK, res.code, res.body)

		var released models.Voucher
		s.Require().NoError(s.tx.First(&released, voucherActive.ID).Error)
		s.Equal(types.VoucherStatusActive, released.Status)
	})

	s.Run("ExhaustionMarksUsed", func() {
		single := models.Voucher{
			Status:         types.VoucherStatusActive,
			CandidateID:    candidate.ID,
			ExamID:         exam.ID,
			Opportunities:  1,
			ExpirationDate: time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC),
		}
		s.Require().NoError(s.tx.Create(&single).Error)

		started := s.startAttempt(single.ID.String())

		var consumed models.Voucher
		s.Require().NoError(s.tx.First(&consumed, single.ID).Error)
		s.Equal(types.VoucherStatusUsed, consumed.Status)

		res := doRequest(s.T(), s.jsonRequest(
			http.MethodPost,
			fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
			&auth,
			s.submitBody("B", "Paris"),
		))
		s.Require().Equal(http.StatusOK, res.code, res.body)

		// Used is terminal; concluding the attempt never resurrects it
		s.Require().NoError(s.tx.First(&consumed, single.ID).Error)
		s.Equal(types.VoucherStatusUsed, consumed.Status)
	})
}

func (s *ServerTestSuite) TestResultStatus() {
	started := s.startAttempt(voucherActive.ID.String())

	res := doRequest(s.T(), s.jsonRequest(
		http.MethodPost,
		fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
		&auth,
		s.submitBody("B", "Paris"),
	))
	s.Require().Equal(http.StatusOK, res.code, res.body)

	s.Run("Owner", func() {
		res := doRequest(s.T(), s.jsonRequest(
			http.MethodGet,
			fmt.Sprintf("/v1/results/%s/", started.ResultID),
			&auth,
			nil,
		))
		s.Require().Equal(http.StatusOK, res.code, res.body)

		var result types.ResultResponse
		s.Require().NoError(json.Unmarshal([]byte(res.body), &result))

		s.Equal(types.ResultStatusCompleted, result.Status)
		s.Require().NotNil(result.Score)
		s.EqualValues(100, *result.Score)
		s.NotNil(result.CertificateCode)
		s.NotNil(result.ReportPath)
		s.NotNil(result.CertificatePath)
	})

	s.Run("OtherCandidate", func() {
		res := doRequest(s.T(), s.jsonRequest(
			http.MethodGet,
			fmt.Sprintf("/v1/results/%s/", started.ResultID),
			&auth2,
			nil,
		))
		s.Equal(http.StatusNotFound, res.code, res.body)
	})
}

func (s *ServerTestSuite) TestArtifactEndpoints() {
	started := s.startAttempt(voucherActive.ID.String())

	res := doRequest(s.T(), s.jsonRequest(
		http.MethodPost,
		fmt.Sprintf("/v1/attempts/%s/submit/", started.ResultID),
		&auth,
		s.submitBody("B", "Paris"),
	))
	s.Require().Equal(http.StatusOK, res.code, res.body)

	var result types.ResultResponse
	statusRes := doRequest(s.T(), s.jsonRequest(
		http.MethodGet,
		fmt.Sprintf("/v1/results/%s/", started.ResultID),
		&auth,
		nil,
	))
	s.Require().Equal(http.StatusOK, statusRes.code, statusRes.body)
	s.Require().NoError(json.Unmarshal([]byte(statusRes.body), &result))
	s.Require().NotNil(result.ReportPath)

	s.Run("SignedURL", func() {
		res := doRequest(s.T(), s.jsonRequest(
			http.MethodGet,
			"/v1/artifacts/signed-url/?path="+*result.ReportPath,
			&auth,
			nil,
		))
		s.Require().Equal(http.StatusOK, res.code, res.body)

		var signed types.SignedURLResponse
		s.Require().NoError(json.Unmarshal([]byte(res.body), &signed))
		s.Contains(signed.URL, *result.ReportPath)
	})

	s.Run("SignedURLForStranger", func() {
		res := doRequest(s.T(), s.jsonRequest(
			http.MethodGet,
			"/v1/artifacts/signed-url/?path="+*result.ReportPath,
			&auth2,
			nil,
		))
		s.Equal(http.StatusNotFound, res.code, res.body)
	})

	s.Run("Status", func() {
		res := doRequest(s.T(), s.jsonRequest(
			http.MethodGet,
			"/v1/artifacts/status/?path="+*result.ReportPath,
			&auth,
			nil,
		))
		s.Require().Equal(http.StatusOK, res.code, res.body)

		var status types.ArtifactStatusResponse
		s.Require().NoError(json.Unmarshal([]byte(res.body), &status))
		s.True(status.Exists)
		s.True(status.Available)
		s.Equal(string(artifactstore.TierCool), status.Tier)
	})

	s.Run("UnknownPath", func() {
		res := doRequest(s.T(), s.jsonRequest(
			http.MethodGet,
			"/v1/artifacts/status/?path=nope.pdf",
			&auth,
			nil,
		))
		s.Equal(http.StatusNotFound, res.code, res.body)
	})
}
