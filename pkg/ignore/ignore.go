package ignore

import (
	"fmt"
	"os"

	"regsweep/pkg/types"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 封装了保护规则
// 匹配的位置即使被判定为垃圾也不会被删除 (gitignore 语法，相对存储根目录)
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化保护规则
// patterns: 配置中的规则 (sweep.protect)
// file: 规则文件路径 (sweep.protect_file)，为空表示不使用
func NewMatcher(patterns []string, file string) (*Matcher, error) {
	// 1. 什么都没配置：不保护任何位置
	if len(patterns) == 0 && file == "" {
		return &Matcher{}, nil
	}

	var ignorer *gitignore.GitIgnore
	var err error

	if file != "" {
		// 2. 显式配置了规则文件却不存在，直接报错，不能静默地什么都不保护
		if _, errStat := os.Stat(file); errStat != nil {
			return nil, fmt.Errorf("protect file: %w", errStat)
		}
		// 文件内容和配置规则合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(file, patterns...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(patterns...)
	}

	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定路径是否受保护
// path: 相对存储根目录的路径 (例如 "repositories/prod/app/_layers/sha256/ab...")
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}

// Protects 检查一个 blob 位置是否受保护
func (m *Matcher) Protects(loc types.BlobLocation) bool {
	return m.Matches(loc.Path)
}
