package verification

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the verification steps use.
type TestContext interface {
	Request(ctx context.Context, method, path string, body any, authority bool) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	Session() string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc, codes: map[string]string{}}
	ctx.After(steps.removeEnrollments)

	ctx.Step(`^identity "([^"]*)" is enrolled with embedding "([^"]*)"$`, steps.enroll)
	ctx.Step(`^a code is issued to "([^"]*)"$`, steps.codeIssued)
	ctx.Step(`^"([^"]*)" verifies with the issued code and embedding "([^"]*)"$`, steps.verifyWithIssuedCode)
	ctx.Step(`^"([^"]*)" verifies with code "([^"]*)" and embedding "([^"]*)"$`, steps.verifyWithCode)
	ctx.Step(`^"([^"]*)" fails verification (\d+) times$`, steps.failNTimes)
	ctx.Step(`^the outcome should be "([^"]*)"$`, steps.outcomeShouldBe)
	ctx.Step(`^an authority unlocks "([^"]*)"$`, steps.unlock)
	ctx.Step(`^the session attendance should list (\d+) verified record(?:s)?$`, steps.attendanceVerified)
}

type verificationSteps struct {
	tc       TestContext
	codes    map[string]string
	enrolled []string
}

// identity ids are scoped to the scenario session so reruns never collide
// with an earlier enrollment.
func (s *verificationSteps) identity(name string) string {
	return s.tc.Session() + "-" + name
}

func embedding(csv string) ([]float64, error) {
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad embedding %q: %w", csv, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *verificationSteps) enroll(ctx context.Context, name, csv string) error {
	vec, err := embedding(csv)
	if err != nil {
		return err
	}
	shot := map[string]any{"embedding": vec}
	body := map[string]any{"name": name, "shots": []any{shot, shot, shot}}
	if err := s.tc.Request(ctx, "PUT", "/identities/"+s.identity(name)+"/enrollment", body, true); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != 201 {
		return fmt.Errorf("enrollment of %s returned %d", name, got)
	}
	s.enrolled = append(s.enrolled, s.identity(name))
	return nil
}

// removeEnrollments deletes this scenario's enrollments; the duplicate check
// would otherwise reject the next scenario's identical embeddings.
func (s *verificationSteps) removeEnrollments(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
	for _, id := range s.enrolled {
		if reqErr := s.tc.Request(ctx, "DELETE", "/identities/"+id+"/enrollment", nil, true); reqErr != nil && err == nil {
			err = reqErr
		}
	}
	s.enrolled = nil
	return ctx, err
}

func (s *verificationSteps) codeIssued(ctx context.Context, name string) error {
	path := "/sessions/" + s.tc.Session() + "/codes/" + s.identity(name)
	if err := s.tc.Request(ctx, "POST", path, nil, true); err != nil {
		return err
	}
	code, err := s.tc.GetResponseField("code")
	if err != nil {
		return err
	}
	s.codes[name] = fmt.Sprint(code)
	return nil
}

func (s *verificationSteps) verify(ctx context.Context, name, code, csv string) error {
	vec, err := embedding(csv)
	if err != nil {
		return err
	}
	body := map[string]any{
		"identity_id": s.identity(name),
		"code":        code,
		"sample":      map[string]any{"embedding": vec},
	}
	return s.tc.Request(ctx, "POST", "/sessions/"+s.tc.Session()+"/verify", body, false)
}

func (s *verificationSteps) verifyWithIssuedCode(ctx context.Context, name, csv string) error {
	code, ok := s.codes[name]
	if !ok {
		return fmt.Errorf("no code was issued to %s", name)
	}
	return s.verify(ctx, name, code, csv)
}

func (s *verificationSteps) verifyWithCode(ctx context.Context, name, code, csv string) error {
	return s.verify(ctx, name, code, csv)
}

// failNTimes submits a well-formed but wrong code with a matching face.
func (s *verificationSteps) failNTimes(ctx context.Context, name string, n int) error {
	for i := 0; i < n; i++ {
		if err := s.verify(ctx, name, "0000", "1,0,0"); err != nil {
			return err
		}
	}
	return nil
}

func (s *verificationSteps) outcomeShouldBe(_ context.Context, want string) error {
	got, err := s.tc.GetResponseField("outcome")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected outcome %q, got %q", want, got)
	}
	return nil
}

func (s *verificationSteps) unlock(ctx context.Context, name string) error {
	path := "/sessions/" + s.tc.Session() + "/identities/" + s.identity(name) + "/unlock"
	if err := s.tc.Request(ctx, "POST", path, nil, true); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != 200 {
		return fmt.Errorf("unlock returned %d", got)
	}
	return nil
}

func (s *verificationSteps) attendanceVerified(ctx context.Context, want int) error {
	if err := s.tc.Request(ctx, "GET", "/sessions/"+s.tc.Session()+"/attendance", nil, true); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("summary.verified")
	if err != nil {
		return err
	}
	if n, ok := got.(float64); !ok || int(n) != want {
		return fmt.Errorf("expected %d verified records, got %v", want, got)
	}
	return nil
}
