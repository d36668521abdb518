package techpost_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cucumber/godog"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PortNumber53/techpost-ai/internal/config"
	"github.com/PortNumber53/techpost-ai/internal/credentials"
	"github.com/PortNumber53/techpost-ai/internal/dbmigrate"
	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/handlers"
	"github.com/PortNumber53/techpost-ai/internal/history"
	"github.com/PortNumber53/techpost-ai/internal/models"
	"github.com/PortNumber53/techpost-ai/internal/postgen"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

// scriptedGenerator numbers its posts so history ordering is observable.
type scriptedGenerator struct {
	n atomic.Int64
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, att *models.Attachment) (string, error) {
	return g.GenerateStructured(ctx, prompt, att)
}

func (g *scriptedGenerator) GenerateStructured(context.Context, string, *models.Attachment) (string, error) {
	n := g.n.Add(1)
	return fmt.Sprintf(`{"title":"Post %d","body":"Corpo do post %d sobre engenharia."}`, n, n), nil
}

type bddTestContext struct {
	db           *sql.DB
	server       *httptest.Server
	client       *http.Client
	lastResponse *http.Response
	lastBody     []byte
}

func (ctx *bddTestContext) reset() error {
	ctx.lastResponse = nil
	ctx.lastBody = nil
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	ctx.client = &http.Client{Jar: jar}
	return nil
}

func (ctx *bddTestContext) theDatabaseIsClean() error {
	for _, table := range []string{"public.billing_events", "public.sessions", "public.posts", "public.users"} {
		if _, err := ctx.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (ctx *bddTestContext) theAPIServerIsRunning() error {
	if ctx.server != nil {
		return nil
	}
	logger := zap.NewNop()
	accounts := credentials.NewStore(ctx.db, credentials.Options{
		InitialCredits: config.DefaultInitialCredits,
		BcryptCost:     bcrypt.MinCost,
		Logger:         logger,
	})
	sessions := session.NewManager(ctx.db, session.Options{TTL: config.DefaultSessionTTL, Logger: logger})
	posts := history.NewStore(ctx.db, logger)
	recorder := postgen.NewTxRecorder(ctx.db, entitlement.NewTracker(ctx.db, logger), posts)
	pipeline := postgen.NewService(&scriptedGenerator{}, accounts, recorder, sessions, postgen.Options{Logger: logger})

	h := handlers.New(handlers.Deps{
		DB:       ctx.db,
		Accounts: accounts,
		Sessions: sessions,
		Posts:    posts,
		Pipeline: pipeline,
		Logger:   logger,
	}, handlers.Options{PaywallURL: "https://pay.example/techpost", PriceLabel: "R$ 29,90"})

	r := mux.NewRouter()
	handlers.RegisterRoutes(h, r)
	ctx.server = httptest.NewServer(r)
	return nil
}

func (ctx *bddTestContext) send(method, path, contentType string, body io.Reader) error {
	req, err := http.NewRequest(method, ctx.server.URL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ctx.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	ctx.lastResponse = resp
	ctx.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (ctx *bddTestContext) iSendAGETRequestTo(path string) error {
	return ctx.send(http.MethodGet, path, "", nil)
}

func (ctx *bddTestContext) iSendAPOSTRequestToWithJSON(path string, body *godog.DocString) error {
	return ctx.send(http.MethodPost, path, "application/json", strings.NewReader(body.Content))
}

func (ctx *bddTestContext) credentialsRequest(path, email, password string) error {
	b, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	return ctx.send(http.MethodPost, path, "application/json", strings.NewReader(string(b)))
}

func (ctx *bddTestContext) iSignUpWithEmailAndPassword(email, password string) error {
	return ctx.credentialsRequest("/api/auth/signup", email, password)
}

func (ctx *bddTestContext) iLogInWithEmailAndPassword(email, password string) error {
	return ctx.credentialsRequest("/api/auth/login", email, password)
}

func (ctx *bddTestContext) aUserExistsWithPassword(email, password string) error {
	hash, err := credentials.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return err
	}
	_, err = ctx.db.Exec(`INSERT INTO public.users (email, password_hash, credits, is_vip, created_at) VALUES ($1, $2, $3, FALSE, NOW())`,
		credentials.NormalizeEmail(email), hash, config.DefaultInitialCredits)
	return err
}

func (ctx *bddTestContext) iAmLoggedInAsWithCredits(email string, credits int) error {
	if err := ctx.iSignUpWithEmailAndPassword(email, "segredo1"); err != nil {
		return err
	}
	if err := ctx.theResponseStatusCodeShouldBe(http.StatusCreated); err != nil {
		return err
	}
	_, err := ctx.db.Exec(`UPDATE public.users SET credits = $2 WHERE email = $1`, credentials.NormalizeEmail(email), credits)
	return err
}

func (ctx *bddTestContext) theUserIsVIP(email string) error {
	_, err := ctx.db.Exec(`UPDATE public.users SET is_vip = TRUE WHERE email = $1`, credentials.NormalizeEmail(email))
	return err
}

func (ctx *bddTestContext) iGenerateAPostWithContext(text string) error {
	form := url.Values{}
	form.Set("channel", "LinkedIn")
	form.Set("audience", "Engenheiros")
	form.Set("goal", "Autoridade")
	form.Set("tone", "analytical")
	form.Set("context", text)
	return ctx.send(http.MethodPost, "/api/generate", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (ctx *bddTestContext) theResponseStatusCodeShouldBe(expectedCode int) error {
	if ctx.lastResponse == nil {
		return fmt.Errorf("no response received")
	}
	if ctx.lastResponse.StatusCode != expectedCode {
		return fmt.Errorf("expected status code %d, got %d. Body: %s",
			expectedCode, ctx.lastResponse.StatusCode, string(ctx.lastBody))
	}
	return nil
}

func (ctx *bddTestContext) theResponseShouldContainJSONWithSetTo(key, value string) error {
	var data map[string]any
	if err := json.Unmarshal(ctx.lastBody, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w. Body: %s", err, string(ctx.lastBody))
	}
	actual, ok := data[key]
	if !ok {
		return fmt.Errorf("key %q not found in response: %s", key, string(ctx.lastBody))
	}
	value = strings.Trim(value, `"`)
	if got := fmt.Sprintf("%v", actual); got != value {
		return fmt.Errorf("expected %q to be %q, got %q", key, value, got)
	}
	return nil
}

func (ctx *bddTestContext) theResponseShouldContainError(msg string) error {
	if !strings.Contains(string(ctx.lastBody), msg) {
		return fmt.Errorf("expected error message %q not found in response: %s", msg, string(ctx.lastBody))
	}
	return nil
}

func (ctx *bddTestContext) theResponseShouldBeAJSONArrayWithItems(count int) error {
	var data []map[string]any
	if err := json.Unmarshal(ctx.lastBody, &data); err != nil {
		return fmt.Errorf("failed to parse JSON array: %w. Body: %s", err, string(ctx.lastBody))
	}
	if len(data) != count {
		return fmt.Errorf("expected %d items, got %d", count, len(data))
	}
	if count > 1 && data[0]["title"] != fmt.Sprintf("Post %d", count) {
		return fmt.Errorf("expected newest post first, got %v", data[0]["title"])
	}
	return nil
}

func (ctx *bddTestContext) theUserShouldHaveSavedPosts(email string, want int) error {
	var n int
	if err := ctx.db.QueryRow(`SELECT COUNT(*) FROM public.posts WHERE user_email = $1`, credentials.NormalizeEmail(email)).Scan(&n); err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("expected %d saved posts, got %d", want, n)
	}
	return nil
}

func (ctx *bddTestContext) theUserShouldHaveCredits(email string, want int) error {
	var n int
	if err := ctx.db.QueryRow(`SELECT credits FROM public.users WHERE email = $1`, credentials.NormalizeEmail(email)).Scan(&n); err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("expected %d credits, got %d", want, n)
	}
	return nil
}

func initializeScenario(db *sql.DB) func(*godog.ScenarioContext) {
	return func(sc *godog.ScenarioContext) {
		testCtx := &bddTestContext{db: db}

		sc.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
			return c, testCtx.reset()
		})
		sc.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
			if testCtx.server != nil {
				testCtx.server.Close()
				testCtx.server = nil
			}
			return c, nil
		})

		sc.Step(`^the database is clean$`, testCtx.theDatabaseIsClean)
		sc.Step(`^the API server is running$`, testCtx.theAPIServerIsRunning)
		sc.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
		sc.Step(`^I send a POST request to "([^"]*)" with JSON:$`, testCtx.iSendAPOSTRequestToWithJSON)
		sc.Step(`^I sign up with email "([^"]*)" and password "([^"]*)"$`, testCtx.iSignUpWithEmailAndPassword)
		sc.Step(`^I log in with email "([^"]*)" and password "([^"]*)"$`, testCtx.iLogInWithEmailAndPassword)
		sc.Step(`^a user "([^"]*)" exists with password "([^"]*)"$`, testCtx.aUserExistsWithPassword)
		sc.Step(`^I am logged in as "([^"]*)" with (\d+) credits$`, testCtx.iAmLoggedInAsWithCredits)
		sc.Step(`^the user "([^"]*)" is VIP$`, testCtx.theUserIsVIP)
		sc.Step(`^I generate a post with context "([^"]*)"$`, testCtx.iGenerateAPostWithContext)
		sc.Step(`^the response status code should be (\d+)$`, testCtx.theResponseStatusCodeShouldBe)
		sc.Step(`^the response should contain JSON with "([^"]*)" set to (.+)$`, testCtx.theResponseShouldContainJSONWithSetTo)
		sc.Step(`^the response should contain error "([^"]*)"$`, testCtx.theResponseShouldContainError)
		sc.Step(`^the response should be a JSON array with (\d+) items$`, testCtx.theResponseShouldBeAJSONArrayWithItems)
		sc.Step(`^the user "([^"]*)" should have (\d+) saved posts$`, testCtx.theUserShouldHaveSavedPosts)
		sc.Step(`^the user "([^"]*)" should have (\d+) credits$`, testCtx.theUserShouldHaveCredits)
	}
}

func TestFeatures(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	defer db.Close()
	if err := dbmigrate.Up(db, dbmigrate.DefaultSource); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario(db),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
