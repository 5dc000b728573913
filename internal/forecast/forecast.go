// Package forecast implements the Forecast Provider external interface
// (spec §6): per-container demand error statistics and the two tail
// probabilities the overflow Tree's tail tables are built from. Two
// concrete adapters ship — a Gaussian provider computing exact statistics
// per container, and a rolling-horizon variant that substitutes a
// constant sigma to avoid calling back into a full forecast service
// between rollovers.
package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/pkg/apperror"
)

// Provider is the external forecast interface spec §6 names, consumed by
// problem.Data construction and by rolling.Driver between rollovers.
type Provider interface {
	// ErrorSigma returns the demand forecast error standard deviation for
	// the given flow/client combination.
	ErrorSigma(flowID, clientID string) float64
	// InitLevel returns the container's initial fill level as a percent
	// in [0,100].
	InitLevel(containerID string) float64
	// ForecastLevelDemands returns the horizon-length forecast demand
	// series for the container. A -404 sentinel anywhere in the result is
	// a fatal input error (problem.ForecastSentinel), reported here rather
	// than left for the caller to discover.
	ForecastLevelDemands(horizon int, containerID string) ([]float64, error)
	// UnconditionalProbability returns Pr(X >= a), X ~ N(0, sigma^2).
	UnconditionalProbability(containerID string, a float64) float64
	// ConditionalProbability returns Pr(X+Y >= a-dH | X<a), X ~ N(0,
	// hMinusK*sigma^2), Y ~ N(0, sigma^2).
	ConditionalProbability(containerID string, a, dH, hMinusK float64) float64
}

// unconditionalProbability is the shared Pr(X >= a), X ~ N(0, sigma^2)
// computation both adapters use.
func unconditionalProbability(sigma, a float64) float64 {
	if sigma <= 0 {
		if a <= 0 {
			return 1
		}
		return 0
	}
	n := distuv.Normal{Mu: 0, Sigma: sigma}
	return 1 - n.CDF(a)
}

// conditionalProbability computes Pr(X+Y >= a-dH | X<a) via moment-matched
// truncated-normal convolution: X|X<a is approximated by the Normal whose
// mean/variance match the exact truncated-normal moments (standard
// inverse-Mills-ratio formulas), then summed with the independent Y ~
// N(0, sigma^2) and evaluated as a single Gaussian survival probability.
// The spec defines the exact event but not a closed numerical form; this
// is a standard, numerically stable approximation for it.
func conditionalProbability(sigma, a, dH, hMinusK float64) float64 {
	sigmaX := sigma * math.Sqrt(math.Max(hMinusK, 0))
	if sigmaX <= 0 {
		// X is degenerate at 0; the conditioning event X<a is either
		// certain or impossible.
		if a <= 0 {
			return 0
		}
		return unconditionalProbability(sigma, a-dH)
	}

	alpha := a / sigmaX
	phi := distuv.UnitNormal.Prob(alpha)
	Phi := distuv.UnitNormal.CDF(alpha)
	if Phi < 1e-12 {
		// Conditioning on a near-impossible event; fall back to the
		// unconditional tail so the result stays finite and bounded.
		return unconditionalProbability(sigma, a-dH)
	}

	lambda := -phi / Phi
	meanX := sigmaX * lambda
	varX := sigmaX * sigmaX * (1 + alpha*lambda - lambda*lambda)
	if varX < 0 {
		varX = 0
	}

	mean := meanX
	variance := varX + sigma*sigma
	if variance <= 0 {
		if a-dH <= mean {
			return 1
		}
		return 0
	}
	n := distuv.Normal{Mu: mean, Sigma: math.Sqrt(variance)}
	return 1 - n.CDF(a-dH)
}

// GaussianProvider computes exact per-container statistics from
// explicitly supplied fixtures: initial level, raw forecast series and
// error sigma, keyed by container/flow/client id. It is the default
// adapter and what the end-to-end scenarios exercise (spec §8).
type GaussianProvider struct {
	Sigma     map[string]float64 // key: flowID+"|"+clientID
	InitLevels map[string]float64
	Forecasts  map[string][]float64
}

// NewGaussianProvider builds an empty GaussianProvider ready to have its
// fixture maps populated.
func NewGaussianProvider() *GaussianProvider {
	return &GaussianProvider{
		Sigma:      make(map[string]float64),
		InitLevels: make(map[string]float64),
		Forecasts:  make(map[string][]float64),
	}
}

func sigmaKey(flowID, clientID string) string { return flowID + "|" + clientID }

// ErrorSigma implements Provider.
func (g *GaussianProvider) ErrorSigma(flowID, clientID string) float64 {
	return g.Sigma[sigmaKey(flowID, clientID)]
}

// InitLevel implements Provider.
func (g *GaussianProvider) InitLevel(containerID string) float64 {
	return g.InitLevels[containerID]
}

// ForecastLevelDemands implements Provider.
func (g *GaussianProvider) ForecastLevelDemands(horizon int, containerID string) ([]float64, error) {
	raw, ok := g.Forecasts[containerID]
	if !ok || len(raw) < horizon {
		return nil, apperror.NewCritical(apperror.CodeInconsistentForecast,
			"forecast series shorter than requested horizon").WithDetails("container_id", containerID)
	}
	out := make([]float64, horizon)
	copy(out, raw[:horizon])
	for _, v := range out {
		if v == problem.ForecastSentinel {
			return nil, apperror.NewCritical(apperror.CodeForecastSentinel,
				"forecast sentinel -404 present").WithDetails("container_id", containerID)
		}
	}
	return out, nil
}

// containerSigma resolves the sigma to use for a container-keyed tail
// computation. UnconditionalProbability/ConditionalProbability take the
// container id and look up the Sigma fixture under that id (not the
// flow/client key ErrorSigma uses), letting tests and adapters populate it
// directly without re-deriving flow/client.
func (g *GaussianProvider) containerSigma(containerID string) float64 {
	return g.Sigma[containerID]
}

// UnconditionalProbability implements Provider.
func (g *GaussianProvider) UnconditionalProbability(containerID string, a float64) float64 {
	return unconditionalProbability(g.containerSigma(containerID), a)
}

// ConditionalProbability implements Provider.
func (g *GaussianProvider) ConditionalProbability(containerID string, a, dH, hMinusK float64) float64 {
	return conditionalProbability(g.containerSigma(containerID), a, dH, hMinusK)
}

// cumulativeDemand returns the sum of forecastVolumeDemand over the gap
// days starting right after the baseline day (i.e. days [from+1, from+gap]
// in 1-indexed forecast terms), clamped to the series length.
func cumulativeDemand(forecastVolumeDemand []float64, from, gap int) float64 {
	var sum float64
	for d := from; d < from+gap && d < len(forecastVolumeDemand); d++ {
		sum += forecastVolumeDemand[d]
	}
	return sum
}

// BuildTailTables computes a container's problem.TailTables from a forecast
// Provider (spec §4.2/§6): the Tree consults these four tables, never the
// provider directly, so this is the one place the two are bridged.
//
// Resolved ambiguity: spec §4.2 describes which table applies per tree case
// but not the exact provider call each table entry reduces to. The
// interpretation here:
//   - U_start: unconditional tail with threshold effectiveVolume minus the
//     container's initial load.
//   - U_zero[d]: unconditional tail from a zero starting inventory, with
//     threshold effectiveVolume minus the cumulative forecast volume demand
//     of days 1..d.
//   - C_start[d]: conditional tail with threshold effectiveVolume minus the
//     initial load, the cumulative demand of days 1..d as d_h and d as the
//     elapsed-day count (h_minus_k).
//   - C_zero[pin][gap]: conditional tail from a zero starting inventory
//     (threshold effectiveVolume), with the cumulative demand of the gap
//     days after pin as d_h and gap as the elapsed-day count.
func BuildTailTables(p Provider, containerID string, horizon int, effectiveVolume, initialVolumeLoad float64, forecastVolumeDemand []float64) problem.TailTables {
	tt := problem.NewTailTables(horizon)

	tt.UStart = p.UnconditionalProbability(containerID, effectiveVolume-initialVolumeLoad)

	for d := 1; d <= horizon; d++ {
		tt.UZero[d] = p.UnconditionalProbability(containerID, effectiveVolume-cumulativeDemand(forecastVolumeDemand, 0, d))
		tt.CStart[d] = p.ConditionalProbability(containerID, effectiveVolume-initialVolumeLoad, cumulativeDemand(forecastVolumeDemand, 0, d), float64(d))
	}
	for pin := 0; pin <= horizon; pin++ {
		for gap := 0; gap <= horizon-pin; gap++ {
			tt.CZero[pin][gap] = p.ConditionalProbability(containerID, effectiveVolume, cumulativeDemand(forecastVolumeDemand, pin, gap), float64(gap))
		}
	}
	return tt
}

// RollingProvider substitutes a constant sigma for every probability
// query, delegating InitLevel/ForecastLevelDemands to an inner provider so
// the rolling-horizon driver never calls back into a full forecast
// service between rollovers for the tail statistics (spec §6).
type RollingProvider struct {
	Sigma float64
	Inner Provider
}

// NewRollingProvider wraps inner with a constant sigma.
func NewRollingProvider(inner Provider, sigma float64) *RollingProvider {
	return &RollingProvider{Sigma: sigma, Inner: inner}
}

// ErrorSigma implements Provider, ignoring flowID/clientID.
func (r *RollingProvider) ErrorSigma(string, string) float64 { return r.Sigma }

// InitLevel implements Provider by delegation.
func (r *RollingProvider) InitLevel(containerID string) float64 {
	return r.Inner.InitLevel(containerID)
}

// ForecastLevelDemands implements Provider by delegation.
func (r *RollingProvider) ForecastLevelDemands(horizon int, containerID string) ([]float64, error) {
	return r.Inner.ForecastLevelDemands(horizon, containerID)
}

// UnconditionalProbability implements Provider using the constant sigma.
func (r *RollingProvider) UnconditionalProbability(_ string, a float64) float64 {
	return unconditionalProbability(r.Sigma, a)
}

// ConditionalProbability implements Provider using the constant sigma.
func (r *RollingProvider) ConditionalProbability(_ string, a, dH, hMinusK float64) float64 {
	return conditionalProbability(r.Sigma, a, dH, hMinusK)
}
