package internal

import (
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// EmitList holds the topics a rule publishes to. In YAML it is either a
// single string or a list.
type EmitList []string

func (e *EmitList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var topic string
		if err := node.Decode(&topic); err != nil {
			return err
		}
		*e = EmitList{topic}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := node.Decode(&topics); err != nil {
			return err
		}
		*e = EmitList(topics)
		return nil
	default:
		return fmt.Errorf("emit must be a string or a list of strings")
	}
}

type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is a topic selected for a notification, with the drivers it
// should be published to. No drivers means every configured driver.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	when    string
	emit    []string
	drivers []string
	expr    *govaluate.EvaluableExpression
	params  map[string]string
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": containsFunc,
	"like":     likeFunc,
}

// NewRuleEngine compiles the rule expressions. Identifiers are looked up in
// the flattened payload (pull_request.user.login, labels[0].name) and
// $-prefixed identifiers are JSONPath queries against the decoded payload.
func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rewritten, params := rewriteExpression(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", rule.When, err)
		}
		rules = append(rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			params:  params,
		})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger("rules")
	}
	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Evaluate returns the topics of every rule that matches n.
func (r *RuleEngine) Evaluate(n Notification) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	data := n.Data()
	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params, ok := r.resolve(rule, n.Payload, data)
		if !ok {
			continue
		}
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			r.logger.Printf("rule eval failed when=%q: %v", rule.when, err)
			continue
		}
		if matched, _ := result.(bool); !matched {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

func (r *RuleEngine) resolve(rule compiledRule, payload interface{}, data map[string]interface{}) (map[string]interface{}, bool) {
	params := make(map[string]interface{}, len(rule.params))
	for name, path := range rule.params {
		var (
			value interface{}
			found bool
		)
		if strings.HasPrefix(path, "$") {
			if payload != nil {
				got, err := jsonpath.Get(path, payload)
				value, found = got, err == nil
			}
		} else {
			value, found = data[path]
		}
		if !found {
			if r.strict {
				return nil, false
			}
			value = nil
		}
		params[name] = value
	}
	return params, true
}

var reservedWords = map[string]struct{}{
	"true":  {},
	"false": {},
	"in":    {},
	"IN":    {},
}

// rewriteExpression replaces every identifier in expr with a generated
// parameter name, so dotted and indexed paths survive govaluate's tokenizer.
func rewriteExpression(expr string) (string, map[string]string) {
	params := map[string]string{}
	var out strings.Builder
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '"' || c == '\'':
			end := skipQuoted(runes, i)
			out.WriteString(string(runes[i:end]))
			i = end
		case c == '$' || c == '_' || unicode.IsLetter(c):
			end := readPath(runes, i)
			token := string(runes[i:end])
			i = end
			if _, reserved := reservedWords[token]; reserved || nextNonSpace(runes, i) == '(' {
				out.WriteString(token)
				continue
			}
			name := fmt.Sprintf("rule_param_%d", len(params))
			params[name] = token
			out.WriteString(name)
		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String(), params
}

func readPath(runes []rune, start int) int {
	i := start
	depth := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == '[':
			depth++
		case c == ']':
			if depth == 0 {
				return i
			}
			depth--
		case depth > 0:
		case c == '$' || c == '_' || c == '.' || c == '*' || c == '@' || unicode.IsLetter(c) || unicode.IsDigit(c):
		default:
			return i
		}
		i++
	}
	return i
}

func skipQuoted(runes []rune, start int) int {
	quote := runes[start]
	for i := start + 1; i < len(runes); i++ {
		if runes[i] == '\\' {
			i++
			continue
		}
		if runes[i] == quote {
			return i + 1
		}
	}
	return len(runes)
}

func nextNonSpace(runes []rune, start int) rune {
	for i := start; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) {
			return runes[i]
		}
	}
	return 0
}

func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
	}
	switch haystack := args[0].(type) {
	case nil:
		return false, nil
	case string:
		return strings.Contains(haystack, fmt.Sprint(args[1])), nil
	case []interface{}:
		for _, item := range haystack {
			if reflect.DeepEqual(item, args[1]) {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("contains: unsupported type %T", args[0])
	}
}

func likeFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("like expects 2 arguments, got %d", len(args))
	}
	value, ok := args[0].(string)
	if !ok {
		return false, nil
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("like: pattern must be a string")
	}
	var expr strings.Builder
	expr.WriteString("^")
	for _, c := range pattern {
		switch c {
		case '%':
			expr.WriteString(".*")
		case '_':
			expr.WriteString(".")
		default:
			expr.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	expr.WriteString("$")
	return regexp.MatchString(expr.String(), value)
}
