package logging

import "testing"

func TestCategoryDisabledByDefault(t *testing.T) {
	if Enabled(CategoryDelay) {
		t.Fatal("category unexpectedly enabled before Enable was called")
	}
}

func TestCategoryEnable(t *testing.T) {
	Enable(CategoryDelay)
	if !Enabled(CategoryDelay) {
		t.Fatal("category not enabled after Enable")
	}
	if Enabled(CategoryFile) {
		t.Fatal("unrelated category unexpectedly enabled")
	}
}

func TestCategoryAllEnablesEverything(t *testing.T) {
	Enable(CategoryAll)
	if !Enabled(CategoryInotify) || !Enabled(CategoryExec) {
		t.Fatal("CategoryAll did not enable all categories")
	}
}
