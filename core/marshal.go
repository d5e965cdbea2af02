package core

import "gopkg.in/yaml.v3"

// marshalModuleConfig re-serializes a module's parsed config section back
// to YAML bytes, the form Code.Bootstrap/Instantiate expect (spec section
// 4.1: modules parse their own configuration schema; the core only
// carries it as an opaque buffer between the file and the module).
func marshalModuleConfig(section map[string]any) ([]byte, error) {
	if section == nil {
		return nil, nil
	}
	return yaml.Marshal(section)
}
