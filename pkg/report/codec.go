package report

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// 报告在 Redis 中以 CBOR 存储：紧凑，且字段顺序确定
var encOptions = cbor.EncOptions{
	// 1. Map Key 排序，相同报告编码结果唯一
	Sort: cbor.SortCanonical,
	// 2. 时间编码为 Unix 时间戳 (带小数)
	Time:    cbor.TimeUnixMicro,
	TimeTag: cbor.EncTagNone,
	// 3. 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小，防止损坏的数据耗尽内存
	MaxArrayElements: 100000,
	MaxMapPairs:      1000,
	MaxNestedLevels:  16,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// Encode 序列化报告
func Encode(r *Report) ([]byte, error) {
	data, err := em.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// Decode 反序列化报告
func Decode(data []byte) (*Report, error) {
	var r Report
	if err := dm.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
