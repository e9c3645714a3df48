package staleness

import (
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// research mirrors a small paper: raw prices are pulled, turned into a
// table, and the table goes into the paper.
var research = map[string]string{
	"data_manual/firm_list.csv": "permno\n10001\n",
	"pipeline.hcl": `
task "pull_prices" {
  inputs  = ["${config.manual_data_dir}/firm_list.csv"]
  outputs = ["${config.data_dir}/pulled/prices.csv"]
  action "call" {
    function = "journal"
    path     = "${config.data_dir}/pulled/prices.csv"
    text     = "date,price\n"
  }
}

task "make_table1" {
  inputs  = ["${config.data_dir}/pulled/prices.csv"]
  outputs = ["${config.output_dir}/table1.tex"]
  action "call" {
    function = "journal"
    path     = "${config.output_dir}/table1.tex"
  }
}

task "compile_paper" {
  inputs  = ["${config.output_dir}/table1.tex"]
  outputs = ["${config.output_dir}/paper.pdf"]
  action "call" {
    function = "journal"
    path     = "${config.output_dir}/paper.pdf"
  }
}
`,
}

func allRan() map[string]executor.Status {
	return map[string]executor.Status{
		"pull_prices":   executor.StatusRan,
		"make_table1":   executor.StatusRan,
		"compile_paper": executor.StatusRan,
	}
}

func TestIncremental_SecondRunIsUpToDate(t *testing.T) {
	h := testutil.NewHarness(t, nil, research)
	testutil.AssertStatuses(t, h.Run(), allRan())

	report := h.Run()
	testutil.AssertStatuses(t, report, map[string]executor.Status{
		"pull_prices":   executor.StatusUpToDate,
		"make_table1":   executor.StatusUpToDate,
		"compile_paper": executor.StatusUpToDate,
	})
	assert.Empty(t, h.Journal.Order())
}

func TestIncremental_TouchedIntermediateRebuildsDownstream(t *testing.T) {
	h := testutil.NewHarness(t, nil, research)
	h.Run()

	h.Touch("_data/pulled/prices.csv")
	report := h.Run()

	testutil.AssertStatuses(t, report, map[string]executor.Status{
		"pull_prices":   executor.StatusUpToDate,
		"make_table1":   executor.StatusRan,
		"compile_paper": executor.StatusRan,
	})
	entry, _ := report.Get("compile_paper")
	assert.Contains(t, entry.Reason, "upstream make_table1 ran")
}

func TestIncremental_TouchedSourceRebuildsEverything(t *testing.T) {
	h := testutil.NewHarness(t, nil, research)
	h.Run()

	h.Touch("data_manual/firm_list.csv")
	testutil.AssertStatuses(t, h.Run(), allRan())
}

func TestIncremental_MissingOutputIsRebuilt(t *testing.T) {
	h := testutil.NewHarness(t, nil, research)
	h.Run()

	require.NoError(t, os.Remove(h.Path("_output/table1.tex")))
	report := h.Run()

	testutil.AssertStatuses(t, report, map[string]executor.Status{
		"pull_prices":   executor.StatusUpToDate,
		"make_table1":   executor.StatusRan,
		"compile_paper": executor.StatusRan,
	})
	entry, _ := report.Get("make_table1")
	assert.Contains(t, entry.Reason, "is missing")
}

func TestIncremental_CleanThenRerunMatchesFirstRun(t *testing.T) {
	h := testutil.NewHarness(t, nil, research)
	first := h.Run()

	_, err := h.App.Clean(t.Context())
	require.NoError(t, err)

	second := h.Run()
	assert.Equal(t, first.Statuses(), second.Statuses())
	assert.Equal(t, "compile_paper", h.ReadFile("_output/paper.pdf"))
}

func TestIncremental_TasksWithoutOutputs(t *testing.T) {
	h := testutil.NewHarness(t, nil, map[string]string{
		"data_manual/notes.txt": "v1",
		"pipeline.hcl": `
task "always" {
  inputs = ["${config.manual_data_dir}/notes.txt"]
  action "call" { function = "journal" }
}
task "cached" {
  inputs    = ["${config.manual_data_dir}/notes.txt"]
  cacheable = true
  action "call" { function = "journal" }
}
`,
	})
	testutil.AssertStatuses(t, h.Run(), map[string]executor.Status{
		"always": executor.StatusRan,
		"cached": executor.StatusRan,
	})
	testutil.AssertStatuses(t, h.Run(), map[string]executor.Status{
		"always": executor.StatusRan,
		"cached": executor.StatusUpToDate,
	})

	h.Touch("data_manual/notes.txt")
	testutil.AssertStatuses(t, h.Run(), map[string]executor.Status{
		"always": executor.StatusRan,
		"cached": executor.StatusRan,
	})
}
