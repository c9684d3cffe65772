package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the generic steps use.
type TestContext interface {
	Request(ctx context.Context, method, path string, body any, authority bool) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}
	ctx.Step(`^I send a (GET|POST|PUT|DELETE) request to "([^"]*)"$`, steps.send)
	ctx.Step(`^I send a (GET|POST|PUT|DELETE) request to "([^"]*)" as an authority$`, steps.sendAsAuthority)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) send(ctx context.Context, method, path string) error {
	return s.tc.Request(ctx, method, path, nil, false)
}

func (s *commonSteps) sendAsAuthority(ctx context.Context, method, path string) error {
	return s.tc.Request(ctx, method, path, nil, true)
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s to be %q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got, ok := v.(bool); !ok || fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s to be %s, got %v", field, want, v)
	}
	return nil
}
