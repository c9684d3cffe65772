package e2e

import (
	"github.com/cucumber/godog"

	"rollcall/e2e/steps/common"
	"rollcall/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	verification.RegisterSteps(ctx, tc)
}
