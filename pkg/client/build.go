package client

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aigoflow/mmss-service/internal/models"
)

// BuildVisualizationTask builds the command for one of the dashboard's visualization
// kinds: "asymmetry", "hopfion" or "script". form holds the raw input values; missing
// numeric fields fall back to the service defaults.
func BuildVisualizationTask(kind string, form map[string]string) (TaskCommand, error) {
	name := form["task_name"]
	if name == "" {
		name = kind + " visualization"
	}

	switch kind {
	case "asymmetry":
		kappa, err := formFloat(form, "kappa", 0.2)
		if err != nil {
			return TaskCommand{}, err
		}
		nEvents, err := formInt(form, "n_events", 50000)
		if err != nil {
			return TaskCommand{}, err
		}
		sysErr, err := formFloat(form, "systematic_error", 1e-4)
		if err != nil {
			return TaskCommand{}, err
		}
		return newCommand(name, models.OperatorSimulateEqgftAsymmetry, "eqgft", "polarization_asymmetry", map[string]any{
			"kappa":            kappa,
			"n_events":         nEvents,
			"systematic_error": sysErr,
		})

	case "hopfion":
		gridSize, err := formInt(form, "grid_size", 12)
		if err != nil {
			return TaskCommand{}, err
		}
		radius, err := formFloat(form, "radius", 1.0)
		if err != nil {
			return TaskCommand{}, err
		}
		return newCommand(name, models.OperatorGenerateHopfionField, "eqgft", "hopfion_field", map[string]any{
			"grid_size": gridSize,
			"radius":    radius,
		})

	case "script":
		return newCommand(name, models.OperatorCustomPythonScript, "python", "custom_metrics", map[string]any{
			"script": form["script"],
		})

	default:
		return TaskCommand{}, fmt.Errorf("unknown visualization type %q", kind)
	}
}

func newCommand(name string, op models.GeometricOperator, module, metric string, params map[string]any) (TaskCommand, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return TaskCommand{}, err
	}
	return TaskCommand{
		TaskName:             name,
		GeometricOperator:    op,
		TargetModule:         module,
		Parameters:           data,
		ExpectedOutputMetric: metric,
	}, nil
}

func formFloat(form map[string]string, key string, def float64) (float64, error) {
	s, ok := form[key]
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}

func formInt(form map[string]string, key string, def int64) (int64, error) {
	s, ok := form[key]
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}
