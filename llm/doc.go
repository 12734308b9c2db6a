// Package llm 提供统一的语言模型提供者接口与降级链。
//
// Provider 在构造时按凭证优先级解析一次（GitHub Models → OpenAI），
// 不做逐调用重解析；没有任何凭证时 Resolve 返回 nil Provider，
// 由上层（rag.AnswerGenerator）转换为用户可见的固定提示文本。
package llm
