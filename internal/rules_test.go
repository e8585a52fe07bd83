package internal

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func payload(t *testing.T, raw string) interface{} {
	t.Helper()
	decoded := DecodePayload([]byte(raw))
	if decoded == nil {
		t.Fatalf("invalid test payload %q", raw)
	}
	return decoded
}

// TestRuleEngineEvaluate tests that the rule engine correctly evaluates a simple rule.
func TestRuleEngineEvaluate(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "action == \"labeled\"", Emit: EmitList{"pr.labeled"}},
			{When: "action == \"closed\" && pull_request.merged == true", Emit: EmitList{"pr.merged"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{
		Provider: "github",
		Event:    "pull_request",
		Action:   "labeled",
		Payload:  payload(t, `{"action":"labeled","pull_request":{"merged":false}}`),
	})
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "pr.labeled" {
		t.Fatalf("expected topic pr.labeled, got %q", matches[0].Topic)
	}

	matches = engine.Evaluate(Notification{
		Payload: payload(t, `{"action":"closed","pull_request":{"merged":true}}`),
	})
	if len(matches) != 1 || matches[0].Topic != "pr.merged" {
		t.Fatalf("expected pr.merged, got %v", matches)
	}
}

// TestRuleEngineNotificationFields tests that rules can read the notification itself.
func TestRuleEngineNotificationFields(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: "self_healed == true && prid == \"org/repo/pull/5\"", Emit: EmitList{"anomalies"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{PRID: "org/repo/pull/5", SelfHealed: true})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineEvaluateMissingField tests that a rule on a missing field does not match.
func TestRuleEngineEvaluateMissingField(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: "missing == true", Emit: EmitList{"never"}}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{Payload: payload(t, `{}`)})
	if len(matches) != 0 {
		t.Fatalf("expected no topics, got %d", len(matches))
	}
}

// TestRuleEngineWithDrivers tests that drivers and multiple topics are carried on matches.
func TestRuleEngineWithDrivers(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: "action == \"opened\"", Emit: EmitList{"pr.opened", "pr.any"}, Drivers: []string{"amqp", "http"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{Payload: payload(t, `{"action":"opened"}`)})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if len(matches[1].Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(matches[1].Drivers))
	}
}

// TestRuleEngineJSONPath tests $-prefixed JSONPath identifiers.
func TestRuleEngineJSONPath(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: "$.pull_request.user.login == \"alice\"", Emit: EmitList{"by.alice"}},
			{When: "$.requested_reviewers[0].login == \"carol\"", Emit: EmitList{"review.carol"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{
		Payload: payload(t, `{"pull_request":{"user":{"login":"alice"}},"requested_reviewers":[{"login":"carol"}]}`),
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestRuleEngineBarePaths tests dotted and indexed identifiers against the flattened payload.
func TestRuleEngineBarePaths(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: "action == \"opened\" && pull_request.draft == false", Emit: EmitList{"pr.ready"}},
			{When: "pull_request.labels[0].name == \"bug\"", Emit: EmitList{"pr.bug"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{
		Payload: payload(t, `{"action":"opened","pull_request":{"draft":false,"labels":[{"name":"bug"}]}}`),
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestRuleEngineStrictMissing tests that strict mode skips rules with unresolved identifiers.
func TestRuleEngineStrictMissing(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: "missing_field != true", Emit: EmitList{"lenient"}},
		},
		Strict: true,
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{Payload: payload(t, `{"action":"opened"}`)})
	if len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}

	engine.strict = false
	matches = engine.Evaluate(Notification{Payload: payload(t, `{"action":"opened"}`)})
	if len(matches) != 1 {
		t.Fatalf("expected a match without strict mode, got %d", len(matches))
	}
}

func TestRuleEngineFunctions(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: `contains(labels, "bug")`, Emit: EmitList{"label.bug"}},
			{When: `like(ref, "refs/heads/%")`, Emit: EmitList{"branch"}},
			{When: `contains(title, "WIP")`, Emit: EmitList{"never"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Notification{
		Payload: payload(t, `{"labels":["bug","ui"],"ref":"refs/heads/main","title":"Fix bug"}`),
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestRuleEngineInvalidExpression(t *testing.T) {
	if _, err := NewRuleEngine(RulesConfig{Rules: []Rule{{When: "action ==", Emit: EmitList{"x"}}}}); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestRewriteExpressionKeepsLiteralsAndFunctions(t *testing.T) {
	rewritten, params := rewriteExpression(`like(pull_request.title, "fix %") && contains($.labels[?(@.name == "bug")].name, "bug")`)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %v", params)
	}
	want := `like(rule_param_0, "fix %") && contains(rule_param_1, "bug")`
	if rewritten != want {
		t.Fatalf("unexpected rewrite %q", rewritten)
	}
	if params["rule_param_1"] != `$.labels[?(@.name == "bug")].name` {
		t.Fatalf("unexpected jsonpath %q", params["rule_param_1"])
	}
}

func TestEmitListYAML(t *testing.T) {
	var rules []Rule
	content := "- when: a == 1\n  emit: one\n- when: a == 2\n  emit: [two, three]\n"
	if err := yaml.Unmarshal([]byte(content), &rules); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rules[0].Emit) != 1 || rules[0].Emit[0] != "one" {
		t.Fatalf("unexpected scalar emit %v", rules[0].Emit)
	}
	if len(rules[1].Emit) != 2 || rules[1].Emit[1] != "three" {
		t.Fatalf("unexpected list emit %v", rules[1].Emit)
	}
}
