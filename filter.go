package filter

import "gonum.org/v1/gonum/mat"

// Filter is a dynamical system filter.
type Filter interface {
	// Predict estimates the next internal state of the system
	Predict(mat.Vector, mat.Vector) (Estimate, error)
	// Update updates the system state based on external measurement
	Update(mat.Vector, mat.Vector, mat.Vector) (Estimate, error)
}

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates state x to the next step given input u
	Propagate(x, u mat.Vector) (mat.Vector, error)
}

// Observer observes external state (output) of the system
type Observer interface {
	// Observe returns system output given state x and input u
	Observe(x, u mat.Vector) (mat.Vector, error)
}

// Model is a discrete-time model of a dynamical system
type Model interface {
	// Propagator is system propagator
	Propagator
	// Observer is system observer
	Observer
	// SystemDims returns state, input and output dimensions
	SystemDims() (nx, nu, ny int)
}

// ContinuousModel is a continuous-time model of a dynamical system.
// Its state derivative is assumed to be evaluated with input u held
// constant over the integration step.
type ContinuousModel interface {
	// Derivative returns dx/dt at state x given input u
	Derivative(x, u mat.Vector) (mat.Vector, error)
	// Observer is system observer
	Observer
	// SystemDims returns state, input and output dimensions
	SystemDims() (nx, nu, ny int)
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
}
