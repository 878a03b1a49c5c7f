package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/IshaanNene/ShelfStalk/pkg/shelfstalk"
)

func writeJobs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write jobs: %v", err)
	}
	return path
}

func TestLoadBatchFile(t *testing.T) {
	path := writeJobs(t, `
concurrency: 3
jobs:
  - name: shoes
    url: https://shop.test/shoes
    goal: running shoes
    max_pages: 4
    selectors:
      item: .card
      price: .price
  - url: https://shop.test/hats
    goal: hats
`)
	file, err := loadBatchFile(path)
	if err != nil {
		t.Fatalf("loadBatchFile: %v", err)
	}
	if file.Concurrency != 3 || len(file.Jobs) != 2 {
		t.Fatalf("got concurrency %d, %d jobs", file.Concurrency, len(file.Jobs))
	}
	if file.Jobs[0].Selectors.Item != ".card" || file.Jobs[0].MaxPages != 4 {
		t.Errorf("first job = %+v", file.Jobs[0])
	}
}

func TestLoadBatchFileRejectsIncompleteJobs(t *testing.T) {
	if _, err := loadBatchFile(writeJobs(t, "jobs:\n  - url: https://shop.test\n")); err == nil {
		t.Error("expected error for job without goal")
	}
	if _, err := loadBatchFile(writeJobs(t, "concurrency: 2\n")); err == nil {
		t.Error("expected error for empty jobs file")
	}
}

func TestBatchJobsOverridesBaseOptions(t *testing.T) {
	base := shelfstalk.RunOptions{MaxPages: 10, MinProducts: 5}
	jobs := batchJobs([]batchJob{
		{URL: "https://a.test", Goal: "a", MaxPages: 2},
		{Name: "b", URL: "https://b.test", Goal: "b", Selectors: shelfstalk.Selectors{Item: ".p"}},
	}, base)

	if jobs[0].Name != "job-1" || jobs[0].Options.MaxPages != 2 || jobs[0].Options.MinProducts != 5 {
		t.Errorf("job 0 = %+v", jobs[0])
	}
	if jobs[1].Options.MaxPages != 10 || jobs[1].Options.CustomSelectors.Item != ".p" {
		t.Errorf("job 1 = %+v", jobs[1])
	}
	if base.CustomSelectors.Item != "" {
		t.Error("base options mutated")
	}
}
