package providers

import (
	"runtime"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains the ONNX Runtime session settings used by the detector.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level" yaml:"graph_optimization_level"`

	// ExecutionMode controls sequential vs parallel execution
	ExecutionMode ort.ExecutionMode `json:"execution_mode" yaml:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`

	// ExecutionProviders configures available execution providers
	ExecutionProviders []ExecutionProviderConfig `json:"execution_providers" yaml:"execution_providers"`
}

// DefaultOptimizationConfig returns the CPU-only optimization configuration.
//
// Accelerated providers are opt-in through WithProvider.
//
// @example
// config := DefaultOptimizationConfig().WithProvider(CUDAExecutionProvider, nil)
// options, err := OptimizedSessionOptions(config, logrus.StandardLogger())
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()

	return OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
		ExecutionMode:          ort.ExecutionModeSequential,
		IntraOpNumThreads:      max(1, numCPU/2),
		InterOpNumThreads:      max(1, numCPU/4),
		ExecutionProviders: []ExecutionProviderConfig{
			{
				Provider: CPUExecutionProvider,
				Options:  map[string]string{},
				Priority: 1,
				Enabled:  true,
			},
		},
	}
}

// defaultPriorities ranks accelerated providers above the CPU fallback.
var defaultPriorities = map[Provider]int{
	TensorRTExecutionProvider: 30,
	CUDAExecutionProvider:     20,
	CoreMLExecutionProvider:   10,
	OpenVINOExecutionProvider: 8,
	DNNLExecutionProvider:     5,
	CPUExecutionProvider:      1,
}

// WithProvider returns a copy of the config with the provider enabled.
//
// Arguments:
//   - provider: The execution provider to enable.
//   - options: Provider-specific options passed through to ONNX Runtime.
//
// Returns:
//   - OptimizationConfig: The updated configuration.
func (c OptimizationConfig) WithProvider(provider Provider, options map[string]string) OptimizationConfig {
	if options == nil {
		options = map[string]string{}
	}

	out := c
	out.ExecutionProviders = make([]ExecutionProviderConfig, 0, len(c.ExecutionProviders)+1)
	for _, p := range c.ExecutionProviders {
		if p.Provider != provider {
			out.ExecutionProviders = append(out.ExecutionProviders, p)
		}
	}
	out.ExecutionProviders = append(out.ExecutionProviders, ExecutionProviderConfig{
		Provider: provider,
		Options:  options,
		Priority: defaultPriorities[provider],
		Enabled:  true,
	})
	return out
}

// Enabled returns the enabled providers, highest priority first.
func (c OptimizationConfig) Enabled() []ExecutionProviderConfig {
	enabled := make([]ExecutionProviderConfig, 0, len(c.ExecutionProviders))
	for _, p := range c.ExecutionProviders {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority > enabled[j].Priority
	})
	return enabled
}

// OptimizedSessionOptions applies the optimization settings to new ONNX Runtime session options.
//
// Arguments:
//   - config: Optimization configuration to apply
//   - log: Receives warnings for providers that could not be enabled.
//
// Returns:
//   - *ort.SessionOptions: Configured session options. The caller must Destroy them.
//   - error: Configuration error if any
func OptimizedSessionOptions(config OptimizationConfig, log logrus.FieldLogger) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	if err := applyBasics(options, config); err != nil {
		options.Destroy()
		return nil, err
	}

	if err := applyExecutionProviders(options, config.Enabled(), log); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "failed to configure execution providers")
	}

	return options, nil
}

func applyBasics(options *ort.SessionOptions, config OptimizationConfig) error {
	if err := options.SetGraphOptimizationLevel(config.GraphOptimizationLevel); err != nil {
		return errors.Wrap(err, "set graph optimization level")
	}
	if err := options.SetExecutionMode(config.ExecutionMode); err != nil {
		return errors.Wrap(err, "set execution mode")
	}
	if err := options.SetIntraOpNumThreads(config.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpNumThreads); err != nil {
		return errors.Wrap(err, "set inter-op threads")
	}
	return nil
}

// applyExecutionProviders appends providers in the given order. Accelerators that fail
// to register are logged and skipped so the session falls back to CPU.
func applyExecutionProviders(options *ort.SessionOptions, providers []ExecutionProviderConfig, log logrus.FieldLogger) error {
	for _, provider := range providers {
		var err error

		switch provider.Provider {
		case CPUExecutionProvider:
			// Always available, nothing to append.

		case CUDAExecutionProvider:
			err = appendCUDA(options, provider.Options)

		case TensorRTExecutionProvider:
			err = appendTensorRT(options, provider.Options)

		case CoreMLExecutionProvider:
			var flags uint64
			if raw, ok := provider.Options["flags"]; ok {
				flags, err = strconv.ParseUint(raw, 10, 32)
				if err != nil {
					return errors.Wrapf(err, "invalid coreml flags %q", raw)
				}
			}
			err = options.AppendExecutionProviderCoreML(uint32(flags))

		case OpenVINOExecutionProvider:
			err = options.AppendExecutionProviderOpenVINO(provider.Options)

		case DNNLExecutionProvider:
			log.WithField("provider", provider.Provider).Info("provider not exposed by onnxruntime_go, using cpu")

		default:
			return errors.Errorf("unsupported execution provider: %s", provider.Provider)
		}

		if err != nil {
			log.WithError(err).WithField("provider", provider.Provider).Warn("failed to enable execution provider")
		}
	}

	return nil
}

func appendCUDA(options *ort.SessionOptions, values map[string]string) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()

	if len(values) > 0 {
		if err := cuda.Update(values); err != nil {
			return err
		}
	}
	return options.AppendExecutionProviderCUDA(cuda)
}

func appendTensorRT(options *ort.SessionOptions, values map[string]string) error {
	trt, err := ort.NewTensorRTProviderOptions()
	if err != nil {
		return err
	}
	defer trt.Destroy()

	if len(values) > 0 {
		if err := trt.Update(values); err != nil {
			return err
		}
	}
	return options.AppendExecutionProviderTensorRT(trt)
}
