package models

import (
	"reflect"
	"testing"
)

func TestComputeLowerResolutions(t *testing.T) {
	tests := []struct {
		name  string
		input int
		want  []int
	}{
		{"720p ladder", 720, []int{144, 240, 360, 480}},
		{"1080p ladder", 1080, []int{144, 240, 360, 480, 720}},
		{"odd source between rungs", 500, []int{144, 240, 360, 480}},
		{"below lowest rung", 100, []int{}},
		{"audio only", ResolutionNoVideo, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLowerResolutions(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxBitrateFor(t *testing.T) {
	tests := []struct {
		name       string
		resolution int
		fps        int
		want       int
	}{
		{"720p standard fps", 720, 25, 2800 * 1000},
		{"720p high fps", 720, 60, 4400 * 1000},
		{"odd resolution uses lower rung", 700, 25, 1600 * 1000},
		{"below ladder uses lowest rung", 100, 25, 320 * 1000},
		{"high fps threshold is inclusive", 1080, 50, 8000 * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxBitrateFor(tt.resolution, tt.fps); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}
