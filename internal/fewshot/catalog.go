package fewshot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// catalogFile is the YAML shape of an external catalog.
type catalogFile struct {
	Examples []types.FewShotExample `yaml:"examples"`
}

// LoadCatalog returns the few-shot catalog. When path is empty the embedded
// default corpus is returned; otherwise the YAML file is loaded and entries
// missing optional fields keep their defensive defaults
// (has_expected_output=false, validator_score=0.0).
func LoadCatalog(path string) ([]types.FewShotExample, error) {
	if path == "" {
		logging.KNN("Catalog: using embedded default corpus (%d examples)", len(defaultCorpus))
		return defaultCorpus, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	valid := cf.Examples[:0]
	for _, ex := range cf.Examples {
		if ex.ID == "" || ex.Input == "" || ex.Output == "" {
			logging.KNN("Catalog: skipping incomplete example id=%q", ex.ID)
			continue
		}
		valid = append(valid, ex)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("catalog %s contains no usable examples", path)
	}

	logging.KNN("Catalog: loaded %d examples from %s", len(valid), path)
	return valid, nil
}

// defaultCorpus is the embedded catalog used when no external file is
// configured. Curated to cover every intent at every complexity, with
// expected-output entries for the refactor path.
var defaultCorpus = []types.FewShotExample{
	{
		ID:             "gen-simple-reverse",
		Input:          "write a function to reverse a string",
		Output:         "# String Reversal Function\n\nImplement a function that reverses a string.\n\n## Requirements\n- Accept a single string argument and return the reversed string.\n- Handle empty strings and multi-byte characters correctly.\n- Include at least three unit tests covering empty, single-char, and unicode inputs.",
		Role:           "Developer",
		Intent:         types.IntentGenerate,
		Complexity:     types.ComplexitySimple,
		Domain:         "algorithms",
		ValidatorScore: 0.92,
	},
	{
		ID:             "gen-simple-slugify",
		Input:          "make a slug from a title",
		Output:         "# Title Slugifier\n\nImplement a function that converts an article title into a URL-safe slug.\n\n## Requirements\n- Lowercase the input, replace whitespace runs with single hyphens.\n- Strip characters outside [a-z0-9-].\n- Collapse repeated hyphens and trim them from both ends.",
		Role:           "Developer",
		Intent:         types.IntentGenerate,
		Complexity:     types.ComplexitySimple,
		Domain:         "web",
		ValidatorScore: 0.88,
	},
	{
		ID:             "gen-moderate-csv",
		Input:          "build a csv importer that validates rows and reports errors",
		Output:         "# CSV Importer with Row Validation\n\nBuild a CSV importer that validates each row against a declared schema and produces a structured error report.\n\n## Requirements\n- Stream rows rather than loading the whole file.\n- Validate types and required columns per row; collect errors with line numbers.\n- Continue past invalid rows; return both imported count and an error list.\n\n## Output\n- Importer module, schema declaration format, and an error-report example.",
		Role:           "Senior Developer",
		Intent:         types.IntentGenerate,
		Complexity:     types.ComplexityModerate,
		Domain:         "data",
		ValidatorScore: 0.9,
	},
	{
		ID:             "gen-complex-auth",
		Input:          "create an authentication system with oauth2 jwt and role based access",
		Output:         "# Authentication System Design\n\nDesign and implement an authentication system.\n\n## Understanding\nThe system issues JWT access tokens via OAuth2 flows and enforces role-based access control on every route.\n\n## Requirements (NON-NEGOTIABLE)\n- OAuth2 authorization-code flow with PKCE.\n- JWT access tokens with refresh rotation.\n- Role hierarchy enforced by middleware.\n- Session invalidation on password change.\n\n## Deliverables\n- Token service, middleware, role model, and integration tests.",
		Role:           "Software Architect",
		Intent:         types.IntentGenerate,
		Complexity:     types.ComplexityComplex,
		Domain:         "security",
		Framework:      "oauth2",
		ValidatorScore: 0.95,
	},
	{
		ID:             "debug-simple-nil",
		Input:          "fix nil pointer crash on startup",
		Output:         "# Debug: Nil Pointer on Startup\n\nDiagnose and fix a nil pointer dereference during application startup.\n\n## Steps\n1. Reproduce with the exact startup flags and capture the stack trace.\n2. Identify the first nil dereference frame and the value's initialization path.\n3. Fix the initialization order or add the missing constructor call.\n4. Add a regression test that boots the component in isolation.",
		Role:           "Code Debugger",
		Intent:         types.IntentDebug,
		Complexity:     types.ComplexitySimple,
		Domain:         "runtime",
		ValidatorScore: 0.91,
	},
	{
		ID:             "debug-moderate-zerodiv",
		Input:          "fix zerodivisionerror when dividing by user input",
		Output:         "# Debug: ZeroDivisionError on User Input\n\nEliminate the ZeroDivisionError raised when the divisor originates from user input.\n\n## Steps\n1. Locate every division whose divisor is user-controlled.\n2. Validate the divisor before dividing; define behavior for zero (error message or default).\n3. Add tests for zero, negative, and non-numeric input.\n\n## Constraints\n- Keep the error message actionable for the end user.",
		Role:           "Code Debugger",
		Intent:         types.IntentDebug,
		Complexity:     types.ComplexityModerate,
		Domain:         "validation",
		ValidatorScore: 0.93,
	},
	{
		ID:             "debug-complex-race",
		Input:          "debug intermittent race condition in worker pool under load with database writes",
		Output:         "# Debug: Worker Pool Race Under Load\n\nFind and fix the intermittent race between worker completion and database writes.\n\n## Understanding\nFailures appear only under load, which points at unsynchronized shared state or a write happening after pool shutdown.\n\n## Steps\n1. Run the suite with the race detector enabled and capture reports.\n2. Map every shared structure touched by workers and the shutdown path.\n3. Introduce ownership boundaries or locks; prefer channels for handoff.\n4. Add a stress test that reproduces the original schedule.",
		Role:           "Code Debugger",
		Intent:         types.IntentDebug,
		Complexity:     types.ComplexityComplex,
		Domain:         "concurrency",
		ValidatorScore: 0.94,
	},
	{
		ID:                "refactor-simple-rename",
		Input:             "clean up this helper with confusing names",
		Output:            "# Refactor: Clarify Helper Naming\n\nRename the helper's identifiers to reveal intent without changing behavior.\n\n## Requirements\n- Names must state what the value is, not how it is computed.\n- Keep the public signature stable; rename internals only.\n- Run the existing tests unchanged to prove behavior is preserved.",
		Role:              "Refactoring Specialist",
		Intent:            types.IntentRefactor,
		Complexity:        types.ComplexitySimple,
		Domain:            "readability",
		ValidatorScore:    0.89,
		HasExpectedOutput: true,
	},
	{
		ID:                "refactor-moderate-nested",
		Input:             "refactor this nested function for readability",
		Output:            "# Refactor: Flatten Nested Function\n\nRestructure the deeply nested function into early-return guard clauses and extracted helpers.\n\n## Requirements\n- Invert conditions to return early; target nesting depth <= 2.\n- Extract each loop body that exceeds ten lines into a named helper.\n- Behavior must be byte-identical; keep the current test suite green.\n\n## Expected Output\nThe refactored function plus the list of extracted helpers with one-line purposes.",
		Role:              "Refactoring Specialist",
		Intent:            types.IntentRefactor,
		Complexity:        types.ComplexityModerate,
		Domain:            "readability",
		ValidatorScore:    0.92,
		HasExpectedOutput: true,
	},
	{
		ID:                "refactor-complex-service",
		Input:             "restructure a monolithic service module with mixed io and business logic into layers",
		Output:            "# Refactor: Layer the Monolithic Service\n\nSeparate transport, business logic, and persistence in the service module.\n\n## Understanding\nMixed IO and domain logic block unit testing; the goal is dependency-inverted layers.\n\n## Requirements (NON-NEGOTIABLE)\n- Business rules move behind interfaces with no IO imports.\n- Persistence and HTTP become adapters injected at construction.\n- Each layer gains isolated tests; integration tests cover the seams.\n\n## Expected Output\nPackage layout, interface definitions, and the migration order.",
		Role:              "Refactoring Specialist",
		Intent:            types.IntentRefactor,
		Complexity:        types.ComplexityComplex,
		Domain:            "architecture",
		ValidatorScore:    0.94,
		HasExpectedOutput: true,
	},
	{
		ID:             "explain-simple-closure",
		Input:          "what is a closure",
		Output:         "# Explain: Closures\n\nWrite a clear explanation of closures for a developer new to the concept.\n\n## Requirements\n- Define a closure in one sentence, then unpack it.\n- Show one minimal code example with the captured variable highlighted.\n- Name the two most common pitfalls (loop variables, unintended retention).",
		Role:           "Technical Writer",
		Intent:         types.IntentExplain,
		Complexity:     types.ComplexitySimple,
		Domain:         "languages",
		ValidatorScore: 0.87,
	},
	{
		ID:             "explain-moderate-gc",
		Input:          "explain how garbage collection works and when it pauses",
		Output:         "# Explain: Garbage Collection and Pauses\n\nExplain tracing garbage collection with a focus on pause behavior.\n\n## Requirements\n- Cover mark and sweep phases and what triggers a cycle.\n- Distinguish stop-the-world pauses from concurrent phases.\n- Give practical guidance on reducing allocation pressure.\n- Close with a short glossary of the terms used.",
		Role:           "Technical Writer",
		Intent:         types.IntentExplain,
		Complexity:     types.ComplexityModerate,
		Domain:         "runtime",
		ValidatorScore: 0.9,
	},
	{
		ID:             "explain-complex-raft",
		Input:          "explain the raft consensus algorithm including leader election log replication and safety",
		Output:         "# Explain: Raft Consensus\n\nProduce a thorough explanation of Raft for engineers building on top of it.\n\n## Understanding\nThe reader needs the full protocol: leader election, log replication, and the safety argument.\n\n## Requirements (NON-NEGOTIABLE)\n- Leader election with randomized timeouts and term numbers.\n- Log replication, commit index advancement, and the matching property.\n- The election restriction that preserves safety.\n- One worked failure scenario (partitioned leader rejoining).",
		Role:           "Technical Writer",
		Intent:         types.IntentExplain,
		Complexity:     types.ComplexityComplex,
		Domain:         "distributed-systems",
		ValidatorScore: 0.95,
	},
}
