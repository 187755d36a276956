package prerequisites

import (
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	// Test with a tool that definitely exists - try multiple common tools
	// because different environments have different tools available
	possibleTools := []string{"go", "bash", "sh", "ls", "cat"}

	var foundTool string
	for _, tool := range possibleTools {
		results := Check([]Tool{{Name: tool, Required: false}})
		if len(results.Results) > 0 && results.Results[0].Found {
			foundTool = tool
			break
		}
	}

	if foundTool == "" {
		t.Skip("no common tools found in PATH, skipping test")
	}

	tools := []Tool{
		{
			Name:        foundTool,
			Required:    true,
			Description: "Test tool",
			InstallURL:  "https://example.com",
		},
	}

	results := Check(tools)

	if len(results.Results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results.Results))
	}

	if !results.Results[0].Found {
		t.Errorf("expected %s to be found", foundTool)
	}

	if results.HasErrors() {
		t.Error("expected no errors for present tool")
	}
}

func TestCheck_MissingRequiredTool(t *testing.T) {
	tools := []Tool{
		{
			Name:       "definitely-not-a-real-binary-name",
			Required:   true,
			InstallURL: "https://example.com",
		},
	}

	results := Check(tools)

	if !results.HasErrors() {
		t.Error("expected errors for missing required tool")
	}

	err := results.Error()
	if err == nil {
		t.Fatal("expected error for missing required tool")
	}
	if want := "missing required tools"; !strings.Contains(err.Error(), want) {
		t.Errorf("expected error to contain %q, got %q", want, err.Error())
	}
}

func TestCheck_MissingOptionalTool(t *testing.T) {
	tools := []Tool{
		{
			Name:     "definitely-not-a-real-binary-name",
			Required: false,
		},
	}

	results := Check(tools)

	if results.HasErrors() {
		t.Error("missing optional tool must not be an error")
	}
	if results.Error() != nil {
		t.Error("expected nil error for missing optional tool")
	}
}
