package tools

import (
	"fmt"
	"strconv"

	"github.com/tareqmamari/credit-alarms/internal/events"
)

// GetStringParam safely gets a string parameter from arguments.
// Numbers are converted to their string form.
func GetStringParam(arguments map[string]interface{}, key string, required bool) (string, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required argument: %s", key)
		}
		return "", nil
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return "", fmt.Errorf("invalid type for argument %s: expected string, got %T", key, val)
	}
}

// GetIntParam safely gets an integer parameter from arguments
func GetIntParam(arguments map[string]interface{}, key string, required bool) (int, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required argument: %s", key)
		}
		return 0, nil
	}

	switch v := val.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("invalid value for argument %s: expected a whole number, got %v", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("invalid type for argument %s: expected number, got %T", key, val)
	}
}

// GetFloatParam safely gets a number parameter from arguments
func GetFloatParam(arguments map[string]interface{}, key string, required bool) (float64, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required argument: %s", key)
		}
		return 0, nil
	}

	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("invalid type for argument %s: expected number, got %T", key, val)
	}
}

// GetBoolParam safely gets a boolean parameter from arguments
func GetBoolParam(arguments map[string]interface{}, key string, required bool) (bool, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return false, fmt.Errorf("missing required argument: %s", key)
		}
		return false, nil
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("invalid type for argument %s: expected boolean, got %T", key, val)
	}
}

// GetInstanceIDParam gets an EC2 instance id and checks its shape.
func GetInstanceIDParam(arguments map[string]interface{}, key string, required bool) (string, error) {
	id, err := GetStringParam(arguments, key, required)
	if err != nil || id == "" {
		return id, err
	}
	if err := events.Validate("instance-id", events.SuppressRequest{InstanceID: id}); err != nil {
		return "", fmt.Errorf("invalid instance id %q: expected an id starting with i-", id)
	}
	return id, nil
}
