// bench-build measures build time and heap growth of plans with increasing
// tree depth, and compares the heap actually retained with the cache's size
// estimate.
//
// Usage:
//
//	go run ./scripts/bench-build --branches 3 --max-stages 9 --stage-duration 24 \
//	  --period 24 --profile-dir docs/profiles/build
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
)

type measurement struct {
	stages    int
	points    int
	elapsed   time.Duration
	heapInUse uint64
	estimate  int64
}

func main() {
	branches := flag.Int("branches", 2, "Branching factor")
	maxStages := flag.Int("max-stages", 10, "Deepest tree to build")
	stageDuration := flag.Int("stage-duration", 24, "Time steps per stage")
	period := flag.Int("period", 0, "Add one coarse resolution with this period (0 = none)")
	link := flag.Int("link", 0, "Precompute continuity links at this offset (0 = none)")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil {
			log.Fatalf("create profile dir: %v", err)
		}
	}

	if *cpuProfile && *profileDir != "" {
		cpuFile, err := os.Create(filepath.Join(*profileDir, "cpu.prof"))
		if err != nil {
			log.Fatalf("create cpu profile: %v", err)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}
		defer pprof.StopCPUProfile()
	}

	builder := plan.NewBuilder(plan.WithLogger(slog.New(slog.DiscardHandler)))

	var results []measurement

	for stages := 1; stages <= *maxStages; stages++ {
		req := plan.Request{
			Branches:      *branches,
			Stages:        stages,
			StageDuration: *stageDuration,
			// Benchmarks deliberately go past the default limits.
			Limits: scenario.Limits{MaxLeaves: 1 << 30, MaxPoints: 1 << 34},
		}

		if *period > 0 {
			req.Resolutions = []plan.ResolutionRequest{{Name: "coarse", Period: *period, Offsets: []int{0, *period}}}
		}

		if *link > 0 {
			req.LinkOffsets = []int{*link}
		}

		before := heapInUse()
		start := time.Now()

		p, err := builder.Build(context.Background(), req)
		if err != nil {
			log.Printf("stages=%d: %v", stages, err)

			break
		}

		elapsed := time.Since(start)
		after := heapInUse()

		results = append(results, measurement{
			stages:    stages,
			points:    p.Tree().Len(),
			elapsed:   elapsed,
			heapInUse: after - min(before, after),
			estimate:  plan.ApproxSize(p),
		})

		if *profileDir != "" {
			writeHeapProfile(filepath.Join(*profileDir, fmt.Sprintf("heap_stages_%d.prof", stages)))
		}

		runtime.KeepAlive(p)
	}

	fmt.Printf("%-8s %12s %12s %12s %12s %8s\n", "Stages", "Points", "Build", "Heap(MB)", "Est.(MB)", "Ratio")

	for _, m := range results {
		ratio := 0.0
		if m.heapInUse > 0 {
			ratio = float64(m.estimate) / float64(m.heapInUse)
		}

		fmt.Printf("%-8d %12d %12s %12.1f %12.1f %8.2f\n",
			m.stages, m.points, m.elapsed.Round(time.Microsecond),
			float64(m.heapInUse)/1e6, float64(m.estimate)/1e6, ratio)
	}
}

func heapInUse() uint64 {
	runtime.GC()
	runtime.GC()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return m.HeapInuse
}

func writeHeapProfile(path string) {
	runtime.GC()

	f, err := os.Create(path)
	if err != nil {
		log.Printf("warning: create heap profile %s: %v", path, err)

		return
	}
	defer f.Close()

	if perr := pprof.WriteHeapProfile(f); perr != nil {
		log.Printf("warning: write heap profile %s: %v", path, perr)
	}
}
