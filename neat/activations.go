package neat

import "math"

// SigmoidSteepness scales the logistic curve so that its output range matches
// the networks evolved by earlier runs of this engine.
const SigmoidSteepness = 4.924273

// Sigmoid is the activation function of every non-input node:
// 1 / (1 + exp(-SigmoidSteepness * x)).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-SigmoidSteepness*x))
}
