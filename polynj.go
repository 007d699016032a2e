/*
polynj resolves polytomies in rooted gene trees with a neighbor joining
procedure that tolerates missing pairwise distances, and scores the resolved
trees against ground truth trees with rooted triplets.

usage: polynj [ -a | -f <format> | -g <dir> | -n <int> | -p <prefix> | -h | -v ] <command> <trees> <distances>

commands:

	resolve		resolves every polytomy and writes the resolved trees
	score		resolves every polytomy and scores input and resolved trees against ground truth

positional arguments:

	<trees>		tab separated orthogroup file with "OG" and "tree" columns
	<distances>	tab separated pairwise distance file (a, b, distance)

flags:

	-a	write node_id and species attributes in resolved trees
	-f format
	  	ground truth tree format [ newick | nexus ] (default "newick")
	-g dir
	  	ground truth directory (required for score)
	-h	prints this message and exits
	-n int
	  	number of parallel processes
	-p prefix
	  	write before/after metric plots to <prefix>_<metric>.png (score only)
	-v	prints version number and exits

examples:

	  resolve command example:
		polynj resolve trees.tsv distances.tsv > resolved.tsv 2> log.txt

	  score command example:
		polynj -g truth/ -p plots/run1 score trees.tsv distances.tsv > results.tsv 2> log.txt
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	gr "github.com/jsdoublel/polynj/internal/graphs"
	"github.com/jsdoublel/polynj/internal/infer"
	pr "github.com/jsdoublel/polynj/internal/prep"
	sc "github.com/jsdoublel/polynj/internal/score"
)

const (
	Version    = "v0.1.0"
	ErrMessage = "polynj encountered an error ::"

	Resolve Command = iota
	Score
)

type Command int

var parseCommand = map[string]Command{
	"resolve": Resolve,
	"score":   Score,
}

type args struct {
	command     Command   // resolve or score
	treesFile   string    // orthogroup trees
	distFile    string    // pairwise distances
	truthDir    string    // ground truth directory
	truthFormat pr.Format // ground truth tree file format
	plotPrefix  string    // metric plot prefix
	withAttrs   bool      // write node attributes
	nprocs      int       // number of parallel processes
}

func setNProcs(nprocs int) int {
	maxProcs := runtime.GOMAXPROCS(0)
	switch {
	case nprocs > maxProcs:
		log.Printf("%d is greater than available processes (%d); limit set to %d\n", nprocs, maxProcs, maxProcs)
		return maxProcs
	case nprocs <= 0:
		log.Printf("number of processes not set; defaulting to %d processes\n", maxProcs)
		return maxProcs
	default:
		return nprocs
	}
}

func parseArgs() args {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"usage: polynj [ -a | -f <format> | -g <dir> | -n <int> | -p <prefix> | -h | -v ] <command> <trees> <distances>\n",
			"\n",
			"commands:\n\n",
			"  resolve\tresolves every polytomy and writes the resolved trees\n",
			"  score\t\tresolves every polytomy and scores input and resolved trees against ground truth\n",
			"\n",
			"positional arguments:\n\n",
			"  <trees>\ttab separated orthogroup file with \"OG\" and \"tree\" columns\n",
			"  <distances>\ttab separated pairwise distance file (a, b, distance)\n",
			"\n",
			"flags:\n\n",
		)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr,
			"\n",
			"examples:\n\n",
			"  resolve command example:\n",
			"\tpolynj resolve trees.tsv distances.tsv > resolved.tsv 2> log.txt\n\n",
			"  score command example:\n",
			"\tpolynj -g truth/ -p plots/run1 score trees.tsv distances.tsv > results.tsv 2> log.txt\n",
		)
	}
	format := pr.Newick
	flag.Var(&format, "f", "ground truth tree `format` [ newick | nexus ] (default \"newick\")")
	truthDir := flag.String("g", "", "ground truth `dir`ectory (required for score)")
	plotPrefix := flag.String("p", "", "write before/after metric plots to <`prefix`>_<metric>.png (score only)")
	withAttrs := flag.Bool("a", false, "write node_id and species attributes in resolved trees")
	help := flag.Bool("h", false, "prints this message and exits")
	ver := flag.Bool("v", false, "prints version number and exits")
	nprocs := flag.Int("n", 0, "number of parallel processes")
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Printf("polynj version %s\n", Version)
		os.Exit(0)
	}
	if flag.NArg() != 3 {
		parserError("three positional arguments required: <command> <trees> <distances>")
	}
	cmd, ok := parseCommand[flag.Arg(0)]
	if !ok {
		parserError(fmt.Sprintf("\"%s\" is not a valid command: either \"resolve\" or \"score\" required", flag.Arg(0)))
	}
	if cmd == Score && *truthDir == "" {
		parserError("score command requires a ground truth directory (-g)")
	}
	if cmd == Resolve && *plotPrefix != "" {
		log.Println("WARNING: -p has no effect with the resolve command")
	}
	return args{
		command:     cmd,
		treesFile:   flag.Arg(1),
		distFile:    flag.Arg(2),
		truthDir:    *truthDir,
		truthFormat: format,
		plotPrefix:  *plotPrefix,
		withAttrs:   *withAttrs,
		nprocs:      setNProcs(*nprocs),
	}
}

// prints message, usage, and exits (status code 1)
func parserError(message string) {
	fmt.Fprintln(os.Stderr, message)
	flag.Usage()
	os.Exit(1)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("polynj version %s", Version)
	args := parseArgs()
	geneTrees, err := pr.ReadOrthogroupFile(args.treesFile)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	idx, err := pr.ReadDistanceFile(args.distFile)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	log.Printf("read %d orthogroups and %d pairwise distances\n", len(geneTrees.Trees), idx.Len())
	ogs, err := pr.Preprocess(geneTrees, args.nprocs)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	log.Println("resolving polytomies...")
	results, summary := infer.ResolveAll(ogs, idx, args.nprocs)
	switch args.command {
	case Resolve:
		names := make([]string, len(results))
		trees := make([]*gr.GeneTree, len(results))
		for i, r := range results {
			names[i], trees[i] = r.OG, r.Resolved
		}
		if err := pr.WriteResolvedTSV(names, trees, args.withAttrs, os.Stdout); err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		log.Printf("wrote %d trees; %s\n", len(trees), summary)
	case Score:
		log.Println("scoring against ground truth...")
		truth := pr.TruthDir{Base: args.truthDir, Format: args.truthFormat}
		records, evalSummary := infer.Evaluate(results, truth, args.nprocs)
		if err := pr.WriteResultsTSV(records, os.Stdout); err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		log.Printf("scored %d of %d orthogroups; %s\n", len(evalSummary.Evaluated), summary.Orthogroups, summary)
		if len(evalSummary.Skipped) > 0 {
			log.Printf("no ground truth for: %s\n", strings.Join(evalSummary.Skipped, ", "))
		}
		if len(evalSummary.Failed) > 0 {
			log.Printf("could not score: %s\n", strings.Join(evalSummary.Failed, ", "))
		}
		s := sc.Summarize(records)
		log.Printf("mean before: precision %.4f, recall %.4f, contradiction %.4f\n",
			s.MeanBefore.Precision, s.MeanBefore.Recall, s.MeanBefore.Contradiction)
		log.Printf("mean after:  precision %.4f, recall %.4f, contradiction %.4f\n",
			s.MeanAfter.Precision, s.MeanAfter.Recall, s.MeanAfter.Contradiction)
		if args.plotPrefix != "" {
			if err := pr.WriteMetricPlots(records, args.plotPrefix); err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
		}
	default:
		panic(fmt.Sprintf("invalid command (%d)", args.command))
	}
}
