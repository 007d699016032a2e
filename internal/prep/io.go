package prep

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/io/nexus"
	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	gr "github.com/jsdoublel/polynj/internal/graphs"
	sc "github.com/jsdoublel/polynj/internal/score"
)

var (
	ErrInvalidFile        = errors.New("invalid file")
	ErrInvalidFormat      = errors.New("invalid format")
	ErrMissingGroundTruth = errors.New("missing ground truth")
	ErrWritingFile        = errors.New("error writing file")

	plotBeforeColor = color.RGBA{R: 190, G: 77, B: 37, A: 255}
	plotAfterColor  = color.RGBA{R: 37, G: 150, B: 190, A: 255}
	plotMarkerShape = draw.SquareGlyph{}

	truthKeyPattern = regexp.MustCompile(`^noD_((\d+)_(\d+)_(\d+)_\d+)\|`)
)

type Format int

const (
	Newick Format = iota
	Nexus

	plotH = 4 * vg.Inch
	plotW = 8 * vg.Inch

	maxTicks = 20

	ogColumn   = "OG"
	treeColumn = "tree"
)

var ParseFormat = map[string]Format{
	"newick": Newick,
	"nexus":  Nexus,
}

func (f *Format) Set(s string) error {
	if format, ok := ParseFormat[s]; ok {
		*f = format
		return nil
	}
	return fmt.Errorf("\"%s\" is not a valid tree file format", s)
}

func (f Format) String() string {
	for s, fr := range ParseFormat {
		if fr == f {
			return s
		}
	}
	panic(fmt.Sprintf("format (%d) does not exist", f))
}

type GeneTrees struct {
	Trees []*gr.GeneTree // gene trees
	Names []string       // orthogroup names
}

// nesting state of quietLog; the logger is restored when the last caller
// returns
var quiet struct {
	sync.Mutex
	n     int
	out   io.Writer
	flags int
}

// silences gotree, which can be noisy while parsing; call the returned
// function to restore the logger. Safe for concurrent use.
func quietLog() func() {
	quiet.Lock()
	if quiet.n == 0 {
		quiet.out, quiet.flags = log.Writer(), log.Flags()
		log.SetOutput(io.Discard)
	}
	quiet.n++
	quiet.Unlock()
	return func() {
		quiet.Lock()
		defer quiet.Unlock()
		quiet.n--
		if quiet.n == 0 {
			log.SetOutput(quiet.out)
			log.SetFlags(quiet.flags)
			quiet.out = nil
		}
	}
}

// Reads tab separated orthogroup file with (at least) an "OG" and a "tree"
// column. Returns an error if the header is missing either column or if any
// tree is not valid newick.
func ReadOrthogroupFile(treesFile string) (*GeneTrees, error) {
	defer quietLog()()
	file, err := os.Open(treesFile)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", treesFile, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", treesFile, err))
		}
	}()
	return readOrthogroups(file, treesFile)
}

func readOrthogroups(r io.Reader, name string) (*GeneTrees, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w, error reading %s: %s", ErrInvalidFormat, name, err.Error())
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w, no orthogroups in %s", ErrInvalidFile, name)
	}
	ogCol, treeCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case ogColumn:
			ogCol = i
		case treeColumn:
			treeCol = i
		}
	}
	if ogCol < 0 || treeCol < 0 {
		return nil, fmt.Errorf("%w, %s requires \"%s\" and \"%s\" columns", ErrInvalidFile, name, ogColumn, treeColumn)
	}
	gts := &GeneTrees{Trees: make([]*gr.GeneTree, 0, len(rows)-1), Names: make([]string, 0, len(rows)-1)}
	for i, row := range rows[1:] {
		if len(row) <= max(ogCol, treeCol) {
			return nil, fmt.Errorf("%w, line %d in %s has %d columns", ErrInvalidFormat, i+2, name, len(row))
		}
		gt, err := gr.ParseGeneTree(row[treeCol])
		if err != nil {
			return nil, fmt.Errorf("%w, error reading tree on line %d in %s: %s", ErrInvalidFormat, i+2, name, err.Error())
		}
		gts.Trees = append(gts.Trees, gt)
		gts.Names = append(gts.Names, strings.TrimSpace(row[ogCol]))
	}
	return gts, nil
}

// Reads tab separated distance file (label, label, distance). Lines starting
// with '#' and a non-numeric header are skipped; "nan" marks unusable
// distances.
func ReadDistanceFile(distFile string) (*DistanceIndex, error) {
	file, err := os.Open(distFile)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", distFile, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", distFile, err))
		}
	}()
	return readDistances(file, distFile)
}

func readDistances(r io.Reader, name string) (*DistanceIndex, error) {
	idx := NewDistanceIndex()
	scanner := bufio.NewScanner(r)
	first := true
	for i := 1; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		header := first
		first = false
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w, line %d in %s has %d columns (3 expected)", ErrInvalidFormat, i, name, len(fields))
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			if header {
				continue
			}
			return nil, fmt.Errorf("%w, bad distance on line %d in %s: %s", ErrInvalidFormat, i, name, err.Error())
		}
		if d < 0 || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w, distance %v on line %d in %s is out of range", ErrInvalidFormat, d, i, name)
		}
		idx.Set(strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w, error reading %s: %s", ErrInvalidFile, name, err.Error())
	}
	if idx.Len() == 0 {
		return nil, fmt.Errorf("%w, empty distance file %s", ErrInvalidFile, name)
	}
	return idx, nil
}

// Ground truth trees stored as <Base>/<a>_<b>_<c>_/g<a>_<b>_<c>_<d>.pruned.tree,
// where a_b_c_d is taken from the noD_a_b_c_d|... leaf label prefix
type TruthDir struct {
	Base   string
	Format Format
}

// Key identifying the ground truth tree of an orthogroup
func TruthKey(t *gr.GeneTree) (key, folder string, ok bool) {
	for _, l := range t.Leaves() {
		n, _ := t.Node(l)
		if m := truthKeyPattern.FindStringSubmatch(n.Label); m != nil {
			return m[1], fmt.Sprintf("%s_%s_%s_", m[2], m[3], m[4]), true
		}
	}
	return "", "", false
}

func (td TruthDir) Lookup(og *gr.Orthogroup) (*gr.GeneTree, error) {
	key, folder, ok := TruthKey(og.Tree)
	if !ok {
		return nil, fmt.Errorf("%w, no ground truth key in leaf labels of %s", ErrMissingGroundTruth, og.OG)
	}
	path := filepath.Join(td.Base, folder, fmt.Sprintf("g%s.pruned.tree", key))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w, %s for %s: %s", ErrMissingGroundTruth, path, og.OG, err.Error())
	}
	return ReadTreeFile(path, td.Format)
}

// Reads single tree file (newick or the first tree of a nexus file)
func ReadTreeFile(treeFile string, format Format) (*gr.GeneTree, error) {
	defer quietLog()()
	treBytes, err := os.ReadFile(treeFile)
	if err != nil {
		return nil, fmt.Errorf("error reading tree file: %w", err)
	}
	treBytes = bytes.TrimSpace(treBytes)
	if len(treBytes) == 0 {
		return nil, fmt.Errorf("%w, empty tree file %s", ErrInvalidFile, treeFile)
	}
	var tre *tree.Tree
	switch format {
	case Newick:
		if bytes.Count(treBytes, []byte{byte('\n')}) != 0 {
			return nil, fmt.Errorf("%w, there should only be exactly one newick tree in tree file %s",
				ErrInvalidFile, treeFile)
		}
		if tre, err = newick.NewParser(bytes.NewReader(treBytes)).Parse(); err != nil {
			return nil, fmt.Errorf("%w, error parsing tree newick string from %s: %s",
				ErrInvalidFormat, treeFile, err.Error())
		}
	case Nexus:
		nex, err := nexus.NewParser(bytes.NewReader(treBytes)).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w, error reading nexus file %s: %s", ErrInvalidFormat, treeFile, err.Error())
		}
		nex.IterateTrees(func(s string, t *tree.Tree) {
			if tre == nil {
				tre = t
			}
		})
		if tre == nil {
			return nil, fmt.Errorf("%w, no trees in nexus file %s", ErrInvalidFile, treeFile)
		}
	default:
		return nil, fmt.Errorf("%w, not a valid file format", ErrInvalidFile)
	}
	gt, err := gr.FromGotree(tre)
	if err != nil {
		return nil, fmt.Errorf("%w, %s: %s", ErrInvalidFormat, treeFile, err.Error())
	}
	return gt, nil
}

// Write resolved trees as tab separated "og", "newick" rows
func WriteResolvedTSV(names []string, trees []*gr.GeneTree, withAttrs bool, w io.Writer) (err error) {
	if len(names) != len(trees) {
		panic(fmt.Sprintf("there should be a name for every tree, %d != %d", len(names), len(trees)))
	}
	data := make([][]string, len(trees)+1)
	data[0] = []string{ogColumn, treeColumn}
	for i, t := range trees {
		data[i+1] = []string{names[i], t.Newick(withAttrs)}
	}
	return writeTSV(data, w)
}

// Write per orthogroup metrics. Columns ending in 1 compare the input tree,
// columns ending in 2 the resolved tree, against the ground truth.
func WriteResultsTSV(records []sc.Record, w io.Writer) error {
	data := make([][]string, len(records)+1)
	data[0] = []string{"og", "precision1", "recall1", "contradiction1", "precision2", "recall2", "contradiction2"}
	for i, r := range records {
		data[i+1] = []string{
			r.OG,
			formatFloat(r.Before.Precision),
			formatFloat(r.Before.Recall),
			formatFloat(r.Before.Contradiction),
			formatFloat(r.After.Precision),
			formatFloat(r.After.Recall),
			formatFloat(r.After.Contradiction),
		}
	}
	return writeTSV(data, w)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeTSV(data [][]string, w io.Writer) (err error) {
	writer := csv.NewWriter(w)
	writer.Comma = '\t'
	defer func() {
		writer.Flush()
		if err == nil {
			err = writer.Error()
		} else if writer.Error() != nil {
			log.Printf("error when flushing output tsv, %s", writer.Error())
		}
	}()
	if err = writer.WriteAll(data); err != nil {
		err = fmt.Errorf("%w, %s", ErrWritingFile, err)
		return
	}
	return
}

// Writes one png per metric (<prefix>_precision.png, ...) comparing the input
// and the resolved trees for every orthogroup
func WriteMetricPlots(records []sc.Record, prefix string) error {
	metrics := []struct {
		name string
		get  func(sc.Metrics) float64
	}{
		{"Precision", func(m sc.Metrics) float64 { return m.Precision }},
		{"Recall", func(m sc.Metrics) float64 { return m.Recall }},
		{"Contradiction", func(m sc.Metrics) float64 { return m.Contradiction }},
	}
	for _, metric := range metrics {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s before and after resolution", metric.name)
		p.X.Label.Text = "OG"
		p.Y.Label.Text = metric.name
		p.X.Min = 0
		p.X.Max = float64(max(len(records)-1, 1))
		p.Y.Min = 0
		p.Y.Max = 1
		p.X.Tick.Marker = ogTicker(records)
		p.Legend.Top = true
		for _, series := range []struct {
			label string
			clr   color.Color
			get   func(sc.Record) sc.Metrics
		}{
			{"input tree", plotBeforeColor, func(r sc.Record) sc.Metrics { return r.Before }},
			{"resolved tree", plotAfterColor, func(r sc.Record) sc.Metrics { return r.After }},
		} {
			pts := make(plotter.XYs, 0, len(records))
			for i, r := range records {
				if v := metric.get(series.get(r)); !math.IsNaN(v) {
					pts = append(pts, plotter.XY{X: float64(i), Y: v})
				}
			}
			if len(pts) == 0 {
				continue
			}
			line, points, err := plotter.NewLinePoints(pts)
			if err != nil {
				return err
			}
			line.Color = series.clr
			line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
			points.Color = series.clr
			points.Shape = plotMarkerShape
			points.Radius = vg.Points(3)
			p.Add(line, points)
			p.Legend.Add(series.label, line, points)
		}
		file := fmt.Sprintf("%s_%s.png", prefix, strings.ToLower(metric.name))
		if err := p.Save(plotW, plotH, file); err != nil {
			return fmt.Errorf("%w, %s: %s", ErrWritingFile, file, err.Error())
		}
	}
	return nil
}

func ogTicker(records []sc.Record) plot.Ticker {
	return plot.TickerFunc(func(_, max float64) []plot.Tick {
		step := 1
		if len(records) > maxTicks {
			step = int(math.Ceil(float64(len(records)) / maxTicks))
		}
		ticks := make([]plot.Tick, 0, len(records)/step+1)
		for i, r := range records {
			if i%step == 0 {
				ticks = append(ticks, plot.Tick{Value: float64(i), Label: r.OG})
			} else {
				ticks = append(ticks, plot.Tick{Value: float64(i)})
			}
		}
		return ticks
	})
}
