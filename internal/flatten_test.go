package internal

import "testing"

func TestFlattenPullRequestPayload(t *testing.T) {
	input := map[string]interface{}{
		"action": "labeled",
		"pull_request": map[string]interface{}{
			"merged": false,
			"user":   map[string]interface{}{"login": "alice"},
			"labels": []interface{}{
				map[string]interface{}{"name": "bug"},
				map[string]interface{}{"name": "ui"},
			},
		},
	}

	flat := Flatten(input)
	if flat["action"] != "labeled" {
		t.Fatalf("expected action to be kept")
	}
	if flat["pull_request.merged"] != false {
		t.Fatalf("expected pull_request.merged to be false")
	}
	if flat["pull_request.user.login"] != "alice" {
		t.Fatalf("expected pull_request.user.login to be alice")
	}
	if _, ok := flat["pull_request.labels[]"]; !ok {
		t.Fatalf("expected pull_request.labels[] to exist")
	}
	if flat["pull_request.labels[1].name"] != "ui" {
		t.Fatalf("expected labels[1].name to be ui")
	}
}
