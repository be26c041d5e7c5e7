package nn

import (
	"fmt"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"

	"gonum.org/v1/gonum/mat"
)

// ToWeights exports the network into its persisted form and stamps the checksum.
func (n *Network) ToWeights(meta models.ModelMetadata) (*models.ModelWeights, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	meta.Kind = n.kind
	meta.InputDim = n.InputDim()
	meta.HiddenDims = n.HiddenDims()

	w := &models.ModelWeights{
		SchemaVersion: models.SchemaVersion,
		Kind:          n.kind,
		PolicyNet:     exportMLP(n.policy),
		ValueNet:      exportMLP(n.value),
		Metadata:      meta,
	}
	if n.constraint != nil {
		w.ConstraintNet = exportMLP(n.constraint)
	}
	w.Metadata.Checksum = Checksum(w)
	return w, nil
}

func exportMLP(m *MLP) []models.LayerWeights {
	out := make([]models.LayerWeights, len(m.Layers))
	for i, l := range m.Layers {
		r, c := l.W.Dims()
		rows := make([][]float64, r)
		for j := 0; j < r; j++ {
			rows[j] = make([]float64, c)
			mat.Row(rows[j], j, l.W)
		}
		out[i] = models.LayerWeights{
			Weights: rows,
			Biases:  append([]float64(nil), l.B.RawVector().Data...),
		}
	}
	return out
}

// FromWeights rebuilds a network. Structure is checked; the checksum is not,
// callers that load from storage validate it first.
func FromWeights(w *models.ModelWeights, constraintThreshold float64) (*Network, error) {
	const op = "decode model"
	if w == nil {
		return nil, errs.New(errs.KindIntegrity, op, "nil weights")
	}
	if err := CheckStructure(w); err != nil {
		return nil, err
	}

	n := &Network{kind: w.Kind, threshold: constraintThreshold}
	n.policy = importMLP(w.PolicyNet)
	n.value = importMLP(w.ValueNet)
	if len(w.ConstraintNet) > 0 {
		n.constraint = importMLP(w.ConstraintNet)
	}
	if n.kind == "" {
		n.kind = models.ModelKindPPO
		if n.constraint != nil {
			n.kind = models.ModelKindCPPO
		}
	}
	return n, nil
}

func importMLP(layers []models.LayerWeights) *MLP {
	m := &MLP{Layers: make([]*Dense, len(layers))}
	for i, l := range layers {
		r, c := len(l.Weights), len(l.Weights[0])
		data := make([]float64, 0, r*c)
		for _, row := range l.Weights {
			data = append(data, row...)
		}
		act := ReLU
		if i == len(layers)-1 {
			act = Linear
		}
		m.Layers[i] = &Dense{
			W:   mat.NewDense(r, c, data),
			B:   mat.NewVecDense(r, append([]float64(nil), l.Biases...)),
			Act: act,
		}
	}
	return m
}

// CheckStructure verifies presence and shape consistency of every head.
func CheckStructure(w *models.ModelWeights) error {
	const op = "check structure"
	if w.Kind != "" && !w.Kind.Valid() {
		return errs.Newf(errs.KindIntegrity, op, "unknown model kind %q", w.Kind)
	}
	if w.SchemaVersion > models.SchemaVersion {
		return errs.Newf(errs.KindIntegrity, op, "schema version %d is newer than supported %d", w.SchemaVersion, models.SchemaVersion)
	}
	if len(w.PolicyNet) == 0 {
		return errs.New(errs.KindIntegrity, op, "policy net is missing")
	}
	if len(w.ValueNet) == 0 {
		return errs.New(errs.KindIntegrity, op, "value net is missing")
	}
	if w.Kind == models.ModelKindCPPO && len(w.ConstraintNet) == 0 {
		return errs.New(errs.KindIntegrity, op, "cppo model has no constraint net")
	}

	heads := []struct {
		name   string
		layers []models.LayerWeights
		out    int
	}{
		{"policy", w.PolicyNet, models.NumActions},
		{"value", w.ValueNet, 1},
		{"constraint", w.ConstraintNet, 1},
	}
	inputDim := -1
	for _, h := range heads {
		if len(h.layers) == 0 {
			continue
		}
		in, out, err := checkLayers(h.layers)
		if err != nil {
			return errs.Wrap(errs.KindIntegrity, op, fmt.Errorf("%s net: %w", h.name, err))
		}
		if out != h.out {
			return errs.Newf(errs.KindIntegrity, op, "%s net outputs %d values, want %d", h.name, out, h.out)
		}
		if inputDim >= 0 && in != inputDim {
			return errs.Newf(errs.KindIntegrity, op, "%s net input %d does not match %d", h.name, in, inputDim)
		}
		inputDim = in
	}
	return nil
}

// checkLayers returns the input and output width of a well-formed stack.
func checkLayers(layers []models.LayerWeights) (in, out int, err error) {
	prevOut := -1
	for i, l := range layers {
		rows := len(l.Weights)
		if rows == 0 || len(l.Biases) != rows {
			return 0, 0, fmt.Errorf("layer %d: %d weight rows, %d biases", i, rows, len(l.Biases))
		}
		cols := len(l.Weights[0])
		if cols == 0 {
			return 0, 0, fmt.Errorf("layer %d: empty weight row", i)
		}
		for r, row := range l.Weights {
			if len(row) != cols {
				return 0, 0, fmt.Errorf("layer %d: row %d has %d columns, want %d", i, r, len(row), cols)
			}
		}
		if prevOut >= 0 && cols != prevOut {
			return 0, 0, fmt.Errorf("layer %d: input %d does not match previous output %d", i, cols, prevOut)
		}
		if i == 0 {
			in = cols
		}
		prevOut = rows
	}
	return in, prevOut, nil
}
