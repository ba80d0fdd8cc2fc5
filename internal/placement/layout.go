package placement

import "math"

const (
	TreePine  = "pine"
	TreeOak   = "oak"
	TreeBirch = "birch"
	TreePalm  = "palm"

	// treeRandom is resolved to a concrete species when planning.
	treeRandom = "random"

	BenchWooden = "wooden"
	BenchStone  = "stone"

	PatchGrass  = "grass"
	PatchFlower = "flower"
	PatchDirt   = "dirt"
)

type treeSpot struct {
	x, z    float64
	variant string
}

var fixedTrees = []treeSpot{
	{-15, -15, TreePine},
	{-25, 8, TreeOak},
	{18, -12, TreeBirch},
	{-8, 20, TreeOak},
	{-5, -5, TreePine},
	{12, 15, TreeBirch},
	{-18, 5, TreeOak},
	{6, -3, TreePine},
	{-12, -18, TreeBirch},
	{10, 8, TreeOak},
	{-30, -30, TreePine},
	{30, 30, TreeOak},
	{-30, 30, TreeBirch},
	{30, -30, TreePine},
	{0, 30, TreePalm},
	{0, -30, TreePalm},
	{30, 0, TreePalm},
	{-30, 0, TreePalm},
}

type treeCluster struct {
	x, z     float64
	radius   float64
	count    int
	mainType string
}

var treeClusters = []treeCluster{
	{-20, 15, 5, 8, TreeOak},
	{22, -20, 7, 10, TreePine},
	{-15, -25, 6, 7, TreeBirch},
	{25, 18, 8, 9, TreeOak},
	{5, 22, 4, 6, TreePine},
}

// Cluster trees that miss the main type pick from these.
var clusterMix = []string{TreePine, TreeOak, TreeBirch}

// Scattered trees cycle through this list by index.
var scatterCycle = []string{TreePine, TreeOak, TreeBirch, TreePine, TreeOak, treeRandom}

var randomSpecies = []string{TreePine, TreeOak, TreeBirch, TreePalm}

const (
	scatteredTreeCount  = 20
	scatterBaseDistance = 15
	scatterDistanceStep = 4
	scatterOffsetScale  = 5
	scatterOffsetFreq   = 7.5
)

type benchSpot struct {
	x, z     float64
	rotation float64
	variant  string
}

var fixedBenches = []benchSpot{
	{8, 3, math.Pi * 0.25, BenchWooden},
	{-8, 3, -math.Pi * 0.25, BenchStone},
	{3, 8, math.Pi * 0.75, BenchWooden},
	{3, -8, -math.Pi * 0.75, BenchStone},
	{15, 0, math.Pi * 0.5, BenchWooden},
	{-15, 0, -math.Pi * 0.5, BenchStone},
	{0, 15, 0, BenchWooden},
	{0, -15, math.Pi, BenchStone},
	{-22, -18, math.Pi * 0.25, BenchStone},
	{22, 22, -math.Pi * 0.75, BenchWooden},
	{18, 18, math.Pi * 0.25, BenchWooden},
	{-18, -18, -math.Pi * 0.75, BenchStone},
	{-18, 18, math.Pi * 0.75, BenchWooden},
	{18, -18, -math.Pi * 0.25, BenchStone},
}

type rockSpot struct {
	x, z     float64
	scale    float64
	rotation float64
}

var fixedRocks = []rockSpot{
	{12, 8, 0.6, 1.2},
	{-15, 3, 0.5, 0.4},
	{8, -12, 0.8, 2.1},
	{-22, 14, 0.7, 0.8},
	{18, -8, 0.6, 1.5},
	{-10, -18, 0.9, 0.3},
}

const (
	rockLift       = 0.35
	rockFlattening = 0.7
)

type patchKind struct {
	variant      string
	count        int
	heightOffset float64
	minScale     float64
	maxScale     float64
}

var patchKinds = []patchKind{
	{PatchGrass, 20, 0.02, 1, 2},
	{PatchFlower, 15, 0.04, 0.8, 1.5},
	{PatchDirt, 12, 0.01, 0.7, 1.8},
}

const (
	patchAttempts      = 20
	patchWaterMargin   = 2
	patchPathClearance = 5
)
