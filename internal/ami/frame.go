package ami

import (
    "fmt"
    "sort"
    "strings"
)

// Event is the header bag of a single inbound AMI frame. A repeated key
// keeps its last value, which is what the classifier needs: the only header
// Asterisk repeats on frames we consume is Variable, and those frames are
// outbound only.
type Event map[string]string

// Action is one outbound AMI request. Variables are emitted as repeated
// "Variable: key=value" headers, the one multi-valued header in the
// supported action surface.
type Action struct {
    Name      string
    Headers   map[string]string
    Variables map[string]string
}

// encodeValue renders a header value; booleans encode as literal
// true/false, everything else passes through as-is.
func encodeValue(value interface{}) string {
    switch v := value.(type) {
    case bool:
        if v {
            return "true"
        }
        return "false"
    case string:
        return v
    default:
        return fmt.Sprintf("%v", v)
    }
}

// decodeValue is the inverse typing: the literals true/false come back as
// bools, everything else stays a string.
func decodeValue(value string) interface{} {
    if value == "true" || value == "false" {
        return value == "true"
    }
    return value
}

// setNotEmpty adds a header unless its value is empty
func setNotEmpty(headers map[string]string, key, value string) {
    if value != "" {
        headers[key] = value
    }
}

// setNotZero adds a numeric header unless it is zero
func setNotZero(headers map[string]string, key string, value uint) {
    if value != 0 {
        headers[key] = fmt.Sprintf("%d", value)
    }
}

// marshalAction builds the wire form of an action. Header order is
// unspecified by the protocol; keys are sorted so frames are reproducible
// in logs and tests.
func marshalAction(action Action, actionID string) string {
    var sb strings.Builder
    sb.WriteString(fmt.Sprintf("Action: %s\r\n", action.Name))
    sb.WriteString(fmt.Sprintf("ActionID: %s\r\n", actionID))

    keys := make([]string, 0, len(action.Headers))
    for key := range action.Headers {
        keys = append(keys, key)
    }
    sort.Strings(keys)

    for _, key := range keys {
        sb.WriteString(fmt.Sprintf("%s: %s\r\n", key, action.Headers[key]))
    }

    varKeys := make([]string, 0, len(action.Variables))
    for key := range action.Variables {
        varKeys = append(varKeys, key)
    }
    sort.Strings(varKeys)

    for _, key := range varKeys {
        sb.WriteString(fmt.Sprintf("Variable: %s=%s\r\n", key, action.Variables[key]))
    }

    sb.WriteString("\r\n")
    return sb.String()
}

// parseLine splits a single "Header: Value" line at the first colon.
// Malformed lines return ok=false and are dropped by the reader.
func parseLine(line string) (key, value string, ok bool) {
    idx := strings.Index(line, ":")
    if idx <= 0 {
        return "", "", false
    }
    return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
