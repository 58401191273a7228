package config_test

import (
	"fmt"
	"os"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/config"
)

func ExampleLoad() {
	os.Setenv("ORCH_APP_ENV", "production")
	os.Setenv("ORCH_SMALL_ENDPOINT_URL", "http://small.internal:8000")
	os.Setenv("ORCH_LARGE_ENDPOINT_URL", "http://large.internal:8001")
	os.Setenv("ORCH_ROUTER_BASE_URL", "http://router.internal:9000")
	defer os.Unsetenv("ORCH_APP_ENV")
	defer os.Unsetenv("ORCH_SMALL_ENDPOINT_URL")
	defer os.Unsetenv("ORCH_LARGE_ENDPOINT_URL")
	defer os.Unsetenv("ORCH_ROUTER_BASE_URL")

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(cfg.App.Env, cfg.Models.SmallEndpointURL, cfg.Router.BaseURL)
	// Output: production http://small.internal:8000 http://router.internal:9000
}
