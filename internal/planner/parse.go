package planner

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"backcast/internal/execution"
	"backcast/internal/market"
)

// CoerceInstructionArrayJSON 把常见包装形态规整为指令数组 JSON：
// 顶层数组原样返回；{"instructions": [...]} 取内层；带 action 的单对象包成数组。
func CoerceInstructionArrayJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("json 内容为空")
	}
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(raw)
	if parsed.IsArray() {
		return raw, nil
	}
	if !parsed.IsObject() {
		return "", fmt.Errorf("根节点必须是 JSON 数组或对象")
	}
	if instructions := parsed.Get("instructions"); instructions.Exists() {
		if !instructions.IsArray() {
			return "", fmt.Errorf("instructions 必须是数组")
		}
		return strings.TrimSpace(instructions.Raw), nil
	}
	if strings.TrimSpace(parsed.Get("action").String()) == "" {
		return "", fmt.Errorf("根节点为对象但未包含 instructions 数组或 action 字段")
	}
	return "[" + raw + "]", nil
}

// ParseInstructions 容错解析指令数组。action 为 hold/wait 的节点跳过，
// 不视为错误；缺 symbol 的节点报错。
func ParseInstructions(raw string) ([]execution.TradeInstruction, error) {
	coerced, err := CoerceInstructionArrayJSON(raw)
	if err != nil {
		return nil, err
	}
	parsed := gjson.Parse(coerced)

	var out []execution.TradeInstruction
	var parseErr error
	idx := 0
	parsed.ForEach(func(_, node gjson.Result) bool {
		idx++
		if !node.IsObject() {
			parseErr = fmt.Errorf("指令#%d 必须是对象", idx)
			return false
		}
		action := normalizeAction(node.Get("action").String())
		if action == "hold" {
			return true
		}
		symbolVal := strings.TrimSpace(node.Get("symbol").String())
		if symbolVal == "" {
			parseErr = fmt.Errorf("指令#%d 缺少 symbol", idx)
			return false
		}
		instr := execution.TradeInstruction{
			ID:     strings.TrimSpace(node.Get("id").String()),
			Action: action,
			Side:   execution.Side(strings.ToLower(strings.TrimSpace(node.Get("side").String()))),
			Instrument: market.InstrumentRef{
				Symbol: symbolVal,
				Venue:  strings.TrimSpace(node.Get("venue").String()),
			},
			Quantity:       node.Get("quantity").Float(),
			MaxSlippageBps: node.Get("max_slippage_bps").Float(),
			Leverage:       int(node.Get("leverage").Int()),
		}
		if meta := node.Get("meta"); meta.Exists() && meta.IsObject() {
			instr.Meta = meta.Value().(map[string]any)
		}
		out = append(out, instr)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// normalizeAction 统一动作名称：大小写不敏感，并将 wait 视为 hold
func normalizeAction(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if a == "wait" {
		return "hold"
	}
	return a
}
