package nn

import (
	"math/rand"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"
)

// ErrUninitialized is returned when a nil or zero Network is used.
var ErrUninitialized = errs.New(errs.KindValidation, "network", "network is not initialized")

// Option configures a new Network.
type Option func(*Config)

// Config holds network architecture settings.
type Config struct {
	Kind                models.ModelKind
	InputDim            int
	HiddenDims          []int
	ConstraintThreshold float64
	Seed                int64
}

// WithKind selects PPO or CPPO heads.
func WithKind(k models.ModelKind) Option {
	return func(c *Config) { c.Kind = k }
}

// WithInputDim sets the feature vector length.
func WithInputDim(n int) Option {
	return func(c *Config) { c.InputDim = n }
}

// WithHiddenDims sets hidden layer widths.
func WithHiddenDims(dims ...int) Option {
	return func(c *Config) { c.HiddenDims = dims }
}

// WithConstraintThreshold sets the CPPO constraint threshold.
func WithConstraintThreshold(t float64) Option {
	return func(c *Config) { c.ConstraintThreshold = t }
}

// WithSeed makes initialization reproducible.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// Network bundles the policy, value and optional constraint MLPs.
// A Network is read-only once built; training works on clones.
type Network struct {
	kind       models.ModelKind
	threshold  float64
	policy     *MLP
	value      *MLP
	constraint *MLP
}

// New builds a freshly initialized network.
func New(opts ...Option) (*Network, error) {
	cfg := &Config{
		Kind:                models.ModelKindPPO,
		InputDim:            models.DefaultFeatureDim,
		HiddenDims:          []int{128, 64},
		ConstraintThreshold: 0.5,
		Seed:                1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.Kind.Valid() {
		return nil, errs.Newf(errs.KindValidation, "new network", "unknown model kind %q", cfg.Kind)
	}
	if cfg.InputDim <= 0 {
		return nil, errs.New(errs.KindValidation, "new network", "input dim must be positive")
	}
	for _, h := range cfg.HiddenDims {
		if h <= 0 {
			return nil, errs.New(errs.KindValidation, "new network", "hidden dims must be positive")
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	sizes := func(out int) []int {
		s := append([]int{cfg.InputDim}, cfg.HiddenDims...)
		return append(s, out)
	}

	n := &Network{
		kind:      cfg.Kind,
		threshold: cfg.ConstraintThreshold,
		policy:    NewMLP(sizes(models.NumActions), rng),
		value:     NewMLP(sizes(1), rng),
	}
	if cfg.Kind == models.ModelKindCPPO {
		n.constraint = NewMLP(sizes(1), rng)
	}
	return n, nil
}

// Must panics on a construction error. For static configurations and tests.
func Must(n *Network, err error) *Network {
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Network) ready() error {
	if n == nil || n.policy == nil || n.value == nil {
		return ErrUninitialized
	}
	return nil
}

func (n *Network) checkInput(state []float64) error {
	if err := n.ready(); err != nil {
		return err
	}
	if len(state) != n.policy.InputDim() {
		return errs.Newf(errs.KindValidation, "forward", "input length %d, want %d", len(state), n.policy.InputDim())
	}
	return nil
}

func (n *Network) Kind() models.ModelKind           { return n.kind }
func (n *Network) InputDim() int                    { return n.policy.InputDim() }
func (n *Network) ConstraintThreshold() float64     { return n.threshold }
func (n *Network) SetConstraintThreshold(t float64) { n.threshold = t }
func (n *Network) HasConstraint() bool              { return n.constraint != nil }

func (n *Network) Policy() *MLP     { return n.policy }
func (n *Network) Value() *MLP      { return n.value }
func (n *Network) Constraint() *MLP { return n.constraint }

// HiddenDims reports the hidden layer widths.
func (n *Network) HiddenDims() []int {
	out := make([]int, 0, len(n.policy.Layers)-1)
	for _, l := range n.policy.Layers[:len(n.policy.Layers)-1] {
		out = append(out, l.Out())
	}
	return out
}

// ForwardPolicy returns the action distribution over {BUY, SELL, HOLD}.
func (n *Network) ForwardPolicy(state []float64) ([]float64, error) {
	if err := n.checkInput(state); err != nil {
		return nil, err
	}
	return Softmax(n.policy.Forward(state)), nil
}

// ForwardValue returns the state value estimate.
func (n *Network) ForwardValue(state []float64) (float64, error) {
	if err := n.checkInput(state); err != nil {
		return 0, err
	}
	return n.value.Forward(state)[0], nil
}

// ForwardConstraint returns the constraint score in [0,1]. ok is false for PPO.
func (n *Network) ForwardConstraint(state []float64) (score float64, ok bool, err error) {
	if err := n.checkInput(state); err != nil {
		return 0, false, err
	}
	if n.constraint == nil {
		return 0, false, nil
	}
	return Sigmoid(n.constraint.Forward(state)[0]), true, nil
}

// ActionSample is the result of one action selection.
type ActionSample struct {
	Index         int
	Direction     models.Direction
	Prob          float64
	LogProb       float64
	Value         float64
	Probs         []float64
	Constraint    float64
	HasConstraint bool
	// ConstraintPenalty in [0,1] scales confidence down when the constraint
	// score exceeds the threshold. The action itself is never vetoed here.
	ConstraintPenalty float64
}

// SelectAction samples from the policy when training and takes the arg-max otherwise.
// rng is only used when training.
func (n *Network) SelectAction(state []float64, training bool, rng *rand.Rand) (ActionSample, error) {
	probs, err := n.ForwardPolicy(state)
	if err != nil {
		return ActionSample{}, err
	}
	value, _ := n.ForwardValue(state)

	idx := Argmax(probs)
	if training {
		if rng == nil {
			return ActionSample{}, errs.New(errs.KindValidation, "select action", "training selection needs a random source")
		}
		idx = Sample(probs, rng.Float64())
	}

	s := ActionSample{
		Index:     idx,
		Direction: models.DirectionFromIndex(idx),
		Prob:      probs[idx],
		LogProb:   SafeLog(probs[idx]),
		Value:     value,
		Probs:     probs,
	}

	if c, ok, _ := n.ForwardConstraint(state); ok {
		s.Constraint = c
		s.HasConstraint = true
		s.ConstraintPenalty = n.penalty(c)
	}
	return s, nil
}

func (n *Network) penalty(c float64) float64 {
	if c <= n.threshold {
		return 0
	}
	if n.threshold >= 1 {
		return 1
	}
	p := (c - n.threshold) / (1 - n.threshold)
	if p > 1 {
		return 1
	}
	return p
}

// Clone returns an independent deep copy.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	out := &Network{kind: n.kind, threshold: n.threshold}
	if n.policy != nil {
		out.policy = n.policy.clone()
	}
	if n.value != nil {
		out.value = n.value.clone()
	}
	if n.constraint != nil {
		out.constraint = n.constraint.clone()
	}
	return out
}

// Params returns raw parameter slices of every head in a fixed order.
// Mutating them mutates the network.
func (n *Network) Params() [][]float64 {
	out := append(n.policy.params(), n.value.params()...)
	if n.constraint != nil {
		out = append(out, n.constraint.params()...)
	}
	return out
}

// NetGrads holds gradients for every head of a Network.
type NetGrads struct {
	Policy     *Grads
	Value      *Grads
	Constraint *Grads
}

// NewNetGrads returns zeroed gradients shaped like n.
func NewNetGrads(n *Network) *NetGrads {
	g := &NetGrads{Policy: NewGrads(n.policy), Value: NewGrads(n.value)}
	if n.constraint != nil {
		g.Constraint = NewGrads(n.constraint)
	}
	return g
}

// Slices returns gradient slices aligned with Network.Params.
func (g *NetGrads) Slices() [][]float64 {
	out := append(g.Policy.slices(), g.Value.slices()...)
	if g.Constraint != nil {
		out = append(out, g.Constraint.slices()...)
	}
	return out
}

// Scale multiplies every gradient by s.
func (g *NetGrads) Scale(s float64) {
	g.Policy.Scale(s)
	g.Value.Scale(s)
	if g.Constraint != nil {
		g.Constraint.Scale(s)
	}
}
