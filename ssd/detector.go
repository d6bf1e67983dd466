package ssd

import (
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ssdfuse/nn"
	"ssdfuse/nn/layers"
	"ssdfuse/tensor"
	"ssdfuse/utils"
)

// SSD is the single-shot detector: a VGG-style trunk, a two-tap fusion
// block, extra downsampling stages and per-scale multibox heads over a
// fixed prior-box set. The prior set is computed once at construction and
// never mutated, so concurrent read-only forward calls may share it.
type SSD struct {
	phase  Phase
	cfg    Config
	logger *zap.SugaredLogger

	trunk nn.Sequence
	taps  trunkTaps

	fusion *Fusion

	extras          nn.Sequence
	extrasTapStride int

	loc  []*layers.Conv2D
	conf []*layers.Conv2D

	priors  *tensor.Tensor // [N, 4] center-size, immutable after Build
	decoder *Decoder

	params map[string]paramSet
}

// paramSet gathers the named tensors one weights-file entry maps onto.
type paramSet struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	mean     *tensor.Tensor
	variance *tensor.Tensor
}

// Output is the result of one forward call. Test phase fills Detections;
// train phase fills Loc and Conf with the raw pre-softmax tensors. Priors
// is set in both phases.
type Output struct {
	Detections []Detections   // per batch item, indexed by class
	Loc        *tensor.Tensor // [batch, N, 4]
	Conf       *tensor.Tensor // [batch, N, numClasses]
	Priors     *tensor.Tensor // [N, 4]
}

// Build constructs a detector for the given phase and configuration.
// Configuration errors are logged and abort construction; no partial model
// is returned.
func Build(phase Phase, cfg Config, logger *zap.SugaredLogger) (*SSD, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fail := func(err error) (*SSD, error) {
		logger.Errorw("detector construction failed", "error", err)
		return nil, err
	}

	if phase != PhaseTrain && phase != PhaseTest {
		return fail(errors.Errorf("phase must be %q or %q, got %q", PhaseTrain, PhaseTest, phase))
	}
	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	trunk, taps, err := buildTrunk(trunkSpec, cfg.InChannels, cfg.Normalize, cfg.TrunkGroups)
	if err != nil {
		return fail(errors.Wrap(err, "trunk"))
	}
	extras, extraTapCh, tapStride, err := buildExtras(extrasSpec, taps.OutCh, cfg.Normalize, cfg.ExtraGroups)
	if err != nil {
		return fail(errors.Wrap(err, "extras"))
	}
	fusion, err := newFusion(taps.ShallowCh, taps.DeepCh, cfg.Normalize)
	if err != nil {
		return fail(errors.Wrap(err, "fusion"))
	}

	tapChannels := append([]int{taps.ShallowCh, taps.OutCh}, extraTapCh...)
	priorsPerCell := cfg.Priors.PriorsPerCell()
	if len(tapChannels) != len(priorsPerCell) {
		return fail(errors.Errorf("feature taps (%d) do not match prior config scales (%d)",
			len(tapChannels), len(priorsPerCell)))
	}
	loc, conf, err := buildMultibox(tapChannels, priorsPerCell, cfg.NumClasses)
	if err != nil {
		return fail(errors.Wrap(err, "multibox"))
	}

	priors, err := NewPriorBoxGenerator(cfg.Priors, cfg.Size).Generate()
	if err != nil {
		return fail(errors.Wrap(err, "priors"))
	}

	s := &SSD{
		phase:           phase,
		cfg:             cfg,
		logger:          logger,
		trunk:           trunk,
		taps:            taps,
		fusion:          fusion,
		extras:          extras,
		extrasTapStride: tapStride,
		loc:             loc,
		conf:            conf,
		priors:          priors,
	}
	if phase == PhaseTest {
		s.decoder = NewDecoder(cfg)
	}
	s.registerParams()
	logger.Infow("detector constructed",
		"phase", phase,
		"classes", cfg.NumClasses,
		"scales", len(tapChannels),
		"priors", priors.Shape[0])
	return s, nil
}

// Priors exposes the immutable prior set (shared, do not mutate).
func (s *SSD) Priors() *tensor.Tensor { return s.priors }

// Phase returns the phase fixed at construction.
func (s *SSD) Phase() Phase { return s.phase }

// Forward runs one batch through the network. Input is
// [batch, InChannels, Size, Size].
func (s *SSD) Forward(x *tensor.Tensor) (*Output, error) {
	if len(x.Shape) != 4 {
		return nil, errors.Errorf("input must be 4-D, got %v", x.Shape)
	}
	if x.Shape[0] < 1 || x.Shape[1] != s.cfg.InChannels || x.Shape[2] != s.cfg.Size || x.Shape[3] != s.cfg.Size {
		return nil, errors.Errorf("input must be [batch >= 1, %d, %d, %d], got %v",
			s.cfg.InChannels, s.cfg.Size, s.cfg.Size, x.Shape)
	}
	batch := x.Shape[0]

	shallow, err := s.trunk.ForwardRange(x, 0, s.taps.Shallow)
	if err != nil {
		return nil, errors.Wrap(err, "trunk to shallow tap")
	}
	deep, err := s.trunk.ForwardRange(shallow, s.taps.Shallow, s.taps.Deep)
	if err != nil {
		return nil, errors.Wrap(err, "trunk to deep tap")
	}
	fused, err := s.fusion.Forward(shallow, deep)
	if err != nil {
		return nil, errors.Wrap(err, "fusion")
	}
	tail, err := s.trunk.ForwardRange(deep, s.taps.Deep, len(s.trunk))
	if err != nil {
		return nil, errors.Wrap(err, "trunk tail")
	}

	sources := []*tensor.Tensor{fused, tail}
	sources, err = s.forwardExtras(tail, sources)
	if err != nil {
		return nil, errors.Wrap(err, "extras")
	}
	if len(sources) != len(s.loc) {
		return nil, errors.Errorf("forward produced %d sources for %d head pairs", len(sources), len(s.loc))
	}

	locFlat := make([][]float64, batch)
	confFlat := make([][]float64, batch)
	for k, src := range sources {
		lo, err := s.loc[k].Forward(src)
		if err != nil {
			return nil, errors.Wrapf(err, "loc head %d", k)
		}
		co, err := s.conf[k].Forward(src)
		if err != nil {
			return nil, errors.Wrapf(err, "conf head %d", k)
		}
		appendChannelsLast(locFlat, lo)
		appendChannelsLast(confFlat, co)
	}

	n := s.priors.Shape[0]
	if len(locFlat[0]) != n*4 {
		return nil, errors.Errorf("loc outputs cover %d priors, generator produced %d", len(locFlat[0])/4, n)
	}
	if len(confFlat[0]) != n*s.cfg.NumClasses {
		return nil, errors.Errorf("conf outputs cover %d priors, generator produced %d",
			len(confFlat[0])/s.cfg.NumClasses, n)
	}

	locT := tensor.New(batch, n, 4)
	confT := tensor.New(batch, n, s.cfg.NumClasses)
	for b := 0; b < batch; b++ {
		copy(locT.Data[b*n*4:], locFlat[b])
		copy(confT.Data[b*n*s.cfg.NumClasses:], confFlat[b])
	}

	if s.phase == PhaseTrain {
		return &Output{Loc: locT, Conf: confT, Priors: s.priors}, nil
	}

	// Per-prior normalized probabilities over the class dimension.
	for b := 0; b < batch; b++ {
		for i := 0; i < n; i++ {
			row := confT.Data[(b*n+i)*s.cfg.NumClasses : (b*n+i+1)*s.cfg.NumClasses]
			copy(row, nn.Softmax(row))
		}
	}
	dets, err := s.decoder.Decode(locT, confT, s.priors)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return &Output{Detections: dets, Priors: s.priors}, nil
}

// forwardExtras runs the extra stages, applying the activation and feature
// taps at the strides the builder promised (activation after every conv in
// the plain layout, after every norm in the normalized one).
func (s *SSD) forwardExtras(x *tensor.Tensor, sources []*tensor.Tensor) ([]*tensor.Tensor, error) {
	reluEvery := 1
	if s.cfg.Normalize {
		reluEvery = 2
	}
	var err error
	for k, l := range s.extras {
		if x, err = l.Forward(x); err != nil {
			return nil, errors.Wrapf(err, "layer %d", k)
		}
		if (k+1)%reluEvery == 0 {
			if x, err = (layers.ReLU{}).Forward(x); err != nil {
				return nil, err
			}
		}
		if k%s.extrasTapStride == s.extrasTapStride-1 {
			sources = append(sources, x)
		}
	}
	return sources, nil
}

// appendChannelsLast flattens a [batch, C, H, W] head output in
// channels-last order (h, w, c) and appends it to each batch item's buffer.
func appendChannelsLast(dst [][]float64, t *tensor.Tensor) {
	batch, ch, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	area := h * w
	for b := 0; b < batch; b++ {
		base := b * ch * area
		for i := 0; i < area; i++ {
			for c := 0; c < ch; c++ {
				dst[b] = append(dst[b], t.Data[base+c*area+i])
			}
		}
	}
}

// registerParams indexes every learned tensor by layer name for the weight
// file contract.
func (s *SSD) registerParams() {
	s.params = make(map[string]paramSet)
	addSeq := func(seq nn.Sequence) {
		for _, l := range seq {
			switch l.Kind {
			case nn.KindConv:
				s.params[l.Conv.Name] = paramSet{weight: l.Conv.W, bias: l.Conv.B}
			case nn.KindNorm:
				s.params[l.Norm.Name] = paramSet{
					weight: l.Norm.Gamma, bias: l.Norm.Beta,
					mean: l.Norm.Mean, variance: l.Norm.Var,
				}
			case nn.KindDeconv:
				s.params[l.Deconv.Name] = paramSet{weight: l.Deconv.W, bias: l.Deconv.B}
			case nn.KindPool, nn.KindReLU:
				// no parameters
			}
		}
	}
	addSeq(s.trunk)
	addSeq(s.extras)

	f := s.fusion
	s.params[f.ConvShallow.Name] = paramSet{weight: f.ConvShallow.W, bias: f.ConvShallow.B}
	s.params[f.Deconv.Name] = paramSet{weight: f.Deconv.W, bias: f.Deconv.B}
	s.params[f.ConvDeep.Name] = paramSet{weight: f.ConvDeep.W, bias: f.ConvDeep.B}
	for _, bn := range []*layers.BatchNorm2D{f.NormShallow, f.NormDeconv, f.NormDeep} {
		if bn != nil {
			s.params[bn.Name] = paramSet{weight: bn.Gamma, bias: bn.Beta, mean: bn.Mean, variance: bn.Var}
		}
	}
	s.params[f.ScaleShallow.Name] = paramSet{weight: f.ScaleShallow.Scale}
	s.params[f.ScaleDeep.Name] = paramSet{weight: f.ScaleDeep.Scale}

	for _, c := range s.loc {
		s.params[c.Name] = paramSet{weight: c.W, bias: c.B}
	}
	for _, c := range s.conf {
		s.params[c.Name] = paramSet{weight: c.W, bias: c.B}
	}
}

// LoadWeights loads serialized weights into the model. Files without a
// recognized extension are reported with a warning and the model keeps its
// freshly-initialized weights; a recognized but malformed or incomplete
// file is an error.
func (s *SSD) LoadWeights(path string) error {
	if ext := filepath.Ext(path); ext != ".json" {
		s.logger.Warnw("unsupported weights format, keeping initialized weights",
			"path", path, "extension", ext, "supported", ".json")
		return nil
	}
	weights, err := utils.LoadWeights(path)
	if err != nil {
		return err
	}
	for name, p := range s.params {
		entry, ok := weights.Layers[name]
		if !ok {
			return errors.Errorf("weights file missing layer %q", name)
		}
		fields := []struct {
			label string
			dst   *tensor.Tensor
			src   *utils.WeightData
		}{
			{"weight", p.weight, entry.Weight},
			{"bias", p.bias, entry.Bias},
			{"mean", p.mean, entry.Mean},
			{"var", p.variance, entry.Var},
		}
		for _, f := range fields {
			if f.dst == nil {
				continue
			}
			if f.src == nil {
				return errors.Errorf("weights file layer %q missing %s", name, f.label)
			}
			if len(f.src.Data) != len(f.dst.Data) {
				return errors.Errorf("layer %q %s has %d values, model expects %d",
					name, f.label, len(f.src.Data), len(f.dst.Data))
			}
			copy(f.dst.Data, f.src.Data)
		}
	}
	s.logger.Infow("weights loaded", "path", path, "layers", len(s.params))
	return nil
}

// SaveWeights serializes the model's weights in the JSON format LoadWeights
// accepts.
func (s *SSD) SaveWeights(path string) error {
	weights := &utils.ModelWeights{
		Version: "1",
		Layers:  make(map[string]utils.LayerWeight, len(s.params)),
	}
	for name, p := range s.params {
		var lw utils.LayerWeight
		if p.weight != nil {
			lw.Weight = utils.TensorToWeightData(name, p.weight)
		}
		if p.bias != nil {
			lw.Bias = utils.TensorToWeightData(name, p.bias)
		}
		if p.mean != nil {
			lw.Mean = utils.TensorToWeightData(name, p.mean)
		}
		if p.variance != nil {
			lw.Var = utils.TensorToWeightData(name, p.variance)
		}
		weights.Layers[name] = lw
	}
	return utils.SaveWeights(path, weights)
}
