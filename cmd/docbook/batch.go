package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"golang.org/x/sync/errgroup"

	"github.com/midbel/docbook/cmd/cli"
	"github.com/midbel/docbook/config"
	"github.com/midbel/docbook/docbook"
)

var batchCmd = cli.Command{
	Name:    "batch",
	Summary: "transform many DocBook documents in parallel",
	Handler: &BatchCmd{},
}

type BatchCmd struct{}

// source is a document found on the command line or in a directory.
type source struct {
	Path  string
	Title string
}

// job is the outcome of the transform of one source.
type job struct {
	Source string
	Title  string
	Result *docbook.Result
	Err    error
}

type batchDoneMsg struct{}

func (c *BatchCmd) Run(args []string) error {
	opts := createOptions("batch")
	cfg, logger, err := opts.Parse(args)
	if err != nil {
		return err
	}
	files, err := collectSources(opts.Args())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("batch: no source document found")
	}
	if err := checkOutputs(files, cfg.OutputDir); err != nil {
		return err
	}

	var (
		failed atomic.Int64
		report func(job)
		prog   *tea.Program
	)
	if interactive(cfg) {
		prog = tea.NewProgram(createBatchModel(len(files)), tea.WithOutput(os.Stderr))
		report = func(j job) {
			prog.Send(j)
		}
	} else {
		report = func(j job) {
			if j.Err != nil {
				printFailure(j.Source, j.Err)
				return
			}
			printResult(j.Label(), j.Result.Output, len(j.Result.Chunks))
		}
	}

	run := func() error {
		var grp errgroup.Group
		grp.SetLimit(cfg.Workers())
		for _, f := range files {
			grp.Go(func() error {
				j := transformSource(cfg, f, logger)
				if j.Err != nil {
					failed.Add(1)
				}
				report(j)
				return nil
			})
		}
		return grp.Wait()
	}
	if prog == nil {
		err = run()
	} else {
		errc := make(chan error, 1)
		go func() {
			errc <- run()
			prog.Send(batchDoneMsg{})
		}()
		m, perr := prog.Run()
		err = <-errc
		if perr != nil {
			return perr
		}
		if bm, ok := m.(batchModel); ok {
			bm.printSummary()
		}
	}
	if err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		fmt.Fprintf(os.Stderr, "%d/%d documents failed\n", n, len(files))
		return errFail
	}
	return nil
}

// transformSource runs the transform of source with a transformer of its
// own. Runs share nothing.
func transformSource(cfg config.Config, src source, logger *slog.Logger) job {
	j := job{
		Source: src.Path,
		Title:  src.Title,
	}
	tf, err := cfg.Transformer(src.Path, logger)
	if err != nil {
		j.Err = err
		return j
	}
	j.Result, j.Err = tf.Transform()
	return j
}

// Label gives the title of the source when known.
func (j job) Label() string {
	if j.Title == "" {
		return j.Source
	}
	return fmt.Sprintf("%s (%s)", j.Source, j.Title)
}

// collectSources expands directories into the DocBook documents they
// contain. Files given explicitly are always kept while xml files found in
// directories are kept only when their root element is the one of a set, a
// book or an article, or when it can not be read.
func collectSources(args []string) ([]source, error) {
	var list []source
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			doc, _ := docbook.Inspect(a)
			list = append(list, source{Path: a, Title: doc.Title})
			continue
		}
		err = filepath.WalkDir(a, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
				return nil
			}
			doc, err := docbook.Inspect(path)
			if err == nil && !doc.IsDocument() {
				return nil
			}
			list = append(list, source{Path: path, Title: doc.Title})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.SortFunc(list, func(a, b source) int {
		return strings.Compare(a.Path, b.Path)
	})
	return slices.CompactFunc(list, func(a, b source) bool {
		return a.Path == b.Path
	}), nil
}

// checkOutputs refuses sources that would be written to the same output
// file.
func checkOutputs(files []source, dir string) error {
	seen := make(map[string]string)
	for _, f := range files {
		out := docbook.OutputPath(f.Path, dir)
		if other, ok := seen[out]; ok {
			return fmt.Errorf("batch: %s and %s are both written to %s", other, f.Path, out)
		}
		seen[out] = f.Path
	}
	return nil
}

type batchModel struct {
	total   int
	jobs    []job
	started time.Time
	done    bool

	spinner  spinner.Model
	progress progress.Model
}

func createBatchModel(total int) batchModel {
	return batchModel{
		total:    total,
		started:  time.Now(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
	}
}

func (m batchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case job:
		m.jobs = append(m.jobs, msg)
	case batchDoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m batchModel) View() tea.View {
	if m.done {
		return tea.NewView("")
	}
	var (
		str  strings.Builder
		pct  = float64(len(m.jobs)) / float64(max(m.total, 1))
		last string
	)
	if n := len(m.jobs); n > 0 {
		last = m.jobs[n-1].Label()
	}
	fmt.Fprintf(&str, "%s %s %d/%d", m.spinner.View(), m.progress.ViewAs(pct), len(m.jobs), m.total)
	if last != "" {
		str.WriteString(" ")
		str.WriteString(faintStyle.Render(last))
	}
	str.WriteString("\n")
	return tea.NewView(str.String())
}

func (m batchModel) printSummary() {
	for _, j := range m.jobs {
		if j.Err != nil {
			printFailure(j.Source, j.Err)
			continue
		}
		printResult(j.Label(), j.Result.Output, len(j.Result.Chunks))
	}
	fmt.Fprintln(os.Stderr, faintStyle.Render(fmt.Sprintf("%d documents in %s", len(m.jobs), time.Since(m.started).Round(time.Millisecond))))
}
