// =============================================================================
// RagFlow Agentic 编排器
// =============================================================================
// 线性流水线: 意图识别 → 规划 → 工具执行 → 后处理 → 汇总。
// 状态不回退,单次请求内不重试;失败进入答案文本而非重启流水线。
// =============================================================================

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/rag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Intent 是查询的响应形态分类。
type Intent string

const (
	IntentLookup    Intent = "lookup"
	IntentCompare   Intent = "compare"
	IntentSummarize Intent = "summarize"
	IntentAnalyze   Intent = "analyze"
)

// 每个子查询的检索条数
const retrievalK = 5

// Plan 是一次请求的执行计划,用完即弃,不持久化。
type Plan struct {
	Intent         Intent   `json:"intent"`
	Strategy       string   `json:"strategy"`
	SearchQueries  []string `json:"search_queries"`
	ToolsNeeded    []string `json:"tools_needed"`
	PostProcessing string   `json:"post_processing"`
}

// PlanSummary 是响应中携带的计划摘要。
type PlanSummary struct {
	Strategy             string   `json:"strategy"`
	SearchQueries        []string `json:"search_queries"`
	ToolsUsed            []string `json:"tools_used"`
	PostProcessingMethod string   `json:"post_processing_method"`
}

// Response 是 agentic 检索的结构化结果,永远良构。
type Response struct {
	Mode         string         `json:"mode"`
	Intent       Intent         `json:"intent"`
	Plan         PlanSummary    `json:"agent_plan"`
	ActionsTaken []string       `json:"actions_taken"`
	Answer       string         `json:"answer"`
	Evidence     []rag.Evidence `json:"evidence"`
	Sources      []string       `json:"sources"`
	Confidence   float64        `json:"confidence"`
}

// processed 是后处理分支的统一产物
type processed struct {
	answer     string
	evidence   []rag.Evidence
	confidence float64
}

// Orchestrator 驱动 agentic 流水线,检索器是它唯一的工具。
type Orchestrator struct {
	retriever *rag.Retriever
	generator *rag.AnswerGenerator
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewOrchestrator 组装编排器
func NewOrchestrator(retriever *rag.Retriever, generator *rag.AnswerGenerator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		tracer:    otel.Tracer("ragflow/agent"),
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// Search 执行完整的 agentic 流水线。永不返回错误:
// 一切失败都被整形进 Response 的 answer/confidence 中。
func (o *Orchestrator) Search(ctx context.Context, query string, allowedRoles []string) Response {
	ctx, span := o.tracer.Start(ctx, "agent.search",
		trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	var actions []string

	// 1. 意图识别
	intent := DetectIntent(query)
	actions = append(actions, fmt.Sprintf("Detected intent: %s", intent))
	span.SetAttributes(attribute.String("intent", string(intent)))

	// 2. 规划
	plan := BuildPlan(intent, query)
	actions = append(actions, fmt.Sprintf("Created execution plan: %s", plan.Strategy))

	// 3. 工具执行:按计划顺序串行检索
	actions = append(actions, "Selected retrieval tool")
	resultSets := o.executeRetrieval(ctx, plan, allowedRoles, &actions)

	// 4. 后处理
	actions = append(actions, fmt.Sprintf("Starting post-processing: %s", plan.PostProcessing))
	proc := o.postProcess(ctx, intent, plan, query, resultSets)

	// 5. 汇总
	sources := dedupeSources(proc.evidence)

	o.logger.Info("agentic search completed",
		zap.String("intent", string(intent)),
		zap.Int("sub_queries", len(plan.SearchQueries)),
		zap.Float64("confidence", proc.confidence))

	return Response{
		Mode:   "agentic",
		Intent: intent,
		Plan: PlanSummary{
			Strategy:             plan.Strategy,
			SearchQueries:        plan.SearchQueries,
			ToolsUsed:            plan.ToolsNeeded,
			PostProcessingMethod: plan.PostProcessing,
		},
		ActionsTaken: actions,
		Answer:       proc.answer,
		Evidence:     proc.evidence,
		Sources:      sources,
		Confidence:   proc.confidence,
	}
}

// =============================================================================
// 意图识别
// =============================================================================

var (
	comparePatterns = []string{
		"compare", "comparison", "difference", "differences",
		"vs", "versus", "contrast", "different",
	}
	summarizePatterns = []string{
		"summarize", "summary", "overview", "brief", "what are", "list all",
	}
	analyzePatterns = []string{
		"analyze", "analysis", "explain", "how does", "why", "what is the impact",
	}
	// 泛指词不触发 "and" 连词比较启发
	genericConjuncts = map[string]bool{
		"policy": true, "policies": true, "document": true, "documents": true,
	}
)

// DetectIntent 通过关键词与模式匹配对查询分类。
// 固定优先级: 比较模式 → "and" 连词启发 → 摘要模式 → 分析模式 → lookup。
// 首个匹配即返回。
func DetectIntent(query string) Intent {
	q := strings.TrimSpace(strings.ToLower(query))

	for _, pattern := range comparePatterns {
		if strings.Contains(q, pattern) {
			return IntentCompare
		}
	}

	if strings.Contains(q, " and ") {
		parts := splitConjuncts(q)
		if len(parts) >= 2 && allUsableConjuncts(parts) {
			return IntentCompare
		}
	}

	for _, pattern := range summarizePatterns {
		if strings.Contains(q, pattern) {
			return IntentSummarize
		}
	}

	for _, pattern := range analyzePatterns {
		if strings.Contains(q, pattern) {
			return IntentAnalyze
		}
	}

	return IntentLookup
}

func splitConjuncts(q string) []string {
	raw := strings.Split(q, " and ")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// allUsableConjuncts 要求每个连词部分超过 3 个字符且不是泛指词
func allUsableConjuncts(parts []string) bool {
	for _, p := range parts {
		if len(p) <= 3 || genericConjuncts[p] {
			return false
		}
	}
	return true
}

// =============================================================================
// 规划
// =============================================================================

// BuildPlan 依据意图生成执行计划。
// compare 意图尝试把查询拆解为子查询;其余意图整句检索。
func BuildPlan(intent Intent, query string) Plan {
	plan := Plan{
		Intent:      intent,
		ToolsNeeded: []string{"retrieval"},
	}

	switch intent {
	case IntentCompare:
		plan.SearchQueries = decomposeComparison(query)
		plan.Strategy = "Split query into components, retrieve relevant sections for each, then synthesize comparison"
		plan.PostProcessing = "combine_and_compare"

	case IntentSummarize:
		plan.SearchQueries = []string{query}
		plan.Strategy = "Retrieve relevant sections, then generate comprehensive summary"
		plan.PostProcessing = "summarize"

	case IntentAnalyze:
		plan.SearchQueries = []string{query}
		plan.Strategy = "Retrieve relevant context, then perform detailed analysis"
		plan.PostProcessing = "analyze"

	default:
		plan.SearchQueries = []string{query}
		plan.Strategy = "Direct retrieval and answer generation"
		plan.PostProcessing = "direct_answer"
	}

	return plan
}

// decomposeComparison 去掉比较关键词后按 " and " 拆分。
// 可用子部分不足 2 个时回退为整句单查询。
func decomposeComparison(query string) []string {
	clean := strings.ToLower(query)
	clean = strings.ReplaceAll(clean, "comparison", "")
	clean = strings.ReplaceAll(clean, "compare", "")
	clean = strings.TrimSpace(clean)

	if !strings.Contains(clean, " and ") {
		return []string{query}
	}

	var parts []string
	for _, p := range strings.Split(clean, " and ") {
		p = strings.TrimSpace(p)
		if len(p) > 2 {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return []string{query}
	}
	return parts
}

// =============================================================================
// 工具执行
// =============================================================================

func (o *Orchestrator) executeRetrieval(ctx context.Context, plan Plan, allowedRoles []string, actions *[]string) [][]rag.RetrievalResult {
	ctx, span := o.tracer.Start(ctx, "agent.retrieve",
		trace.WithAttributes(attribute.Int("sub_queries", len(plan.SearchQueries))))
	defer span.End()

	resultSets := make([][]rag.RetrievalResult, 0, len(plan.SearchQueries))
	for _, sub := range plan.SearchQueries {
		*actions = append(*actions, fmt.Sprintf("Executing retrieval for: '%s'", sub))

		results, err := o.retriever.Retrieve(ctx, sub, retrievalK, allowedRoles)
		if err != nil {
			// 检索失败按零结果处理,流水线继续
			o.logger.Warn("retrieval failed for sub-query",
				zap.String("sub_query", sub), zap.Error(err))
			results = nil
		}
		resultSets = append(resultSets, results)
		*actions = append(*actions, fmt.Sprintf("Retrieved %d relevant chunks", len(results)))
	}
	return resultSets
}

// =============================================================================
// 后处理
// =============================================================================

func (o *Orchestrator) postProcess(ctx context.Context, intent Intent, plan Plan, query string, resultSets [][]rag.RetrievalResult) processed {
	ctx, span := o.tracer.Start(ctx, "agent.post_process",
		trace.WithAttributes(attribute.String("method", plan.PostProcessing)))
	defer span.End()

	switch intent {
	case IntentCompare:
		return o.processCompare(ctx, plan, resultSets)
	case IntentSummarize:
		return o.processSummarize(ctx, firstSet(resultSets))
	case IntentAnalyze:
		return o.processAnalyze(ctx, query, firstSet(resultSets))
	default:
		return o.processLookup(ctx, query, firstSet(resultSets))
	}
}

func firstSet(resultSets [][]rag.RetrievalResult) []rag.RetrievalResult {
	if len(resultSets) == 0 {
		return nil
	}
	return resultSets[0]
}

func refusal(answer string) processed {
	return processed{answer: answer, evidence: []rag.Evidence{}, confidence: 0.3}
}

func (o *Orchestrator) processLookup(ctx context.Context, query string, results []rag.RetrievalResult) processed {
	if len(results) == 0 {
		return refusal("I couldn't find any relevant information in the documents.")
	}

	out := o.generator.Generate(ctx, query, results)
	return processed{answer: out.Answer, evidence: out.Evidence, confidence: out.Confidence}
}

func (o *Orchestrator) processCompare(ctx context.Context, plan Plan, resultSets [][]rag.RetrievalResult) processed {
	total := 0
	distinctSources := map[string]struct{}{}
	for _, set := range resultSets {
		total += len(set)
		for _, res := range set {
			distinctSources[res.Source] = struct{}{}
		}
	}
	if total == 0 {
		return refusal("I couldn't find information to compare.")
	}

	// 每个子查询一个带标签的上下文区块,各取前 2 条
	var sections []string
	for i, sub := range plan.SearchQueries {
		if i >= len(resultSets) {
			break
		}
		set := resultSets[i]
		if len(set) > 2 {
			set = set[:2]
		}
		var blocks []string
		for _, res := range set {
			blocks = append(blocks, fmt.Sprintf("--- Source: %s ---\n%s", res.Source, res.Text))
		}
		sections = append(sections, fmt.Sprintf("## %s:\n%s", strings.ToUpper(sub), strings.Join(blocks, "\n")))
	}

	systemPrompt := "You are an expert at comparing policy documents. Create a clear, structured comparison highlighting key differences and similarities."
	userPrompt := fmt.Sprintf("Compare the following information:\n\n%s\n\nProvide a structured comparison.", strings.Join(sections, "\n\n"))

	answer := o.generator.Complete(ctx, systemPrompt, userPrompt, 0, "comparison")

	// 证据: 前 2 个子查询各取 1 条
	var evidence []rag.Evidence
	for i := 0; i < len(resultSets) && i < 2; i++ {
		if len(resultSets[i]) > 0 {
			res := resultSets[i][0]
			evidence = append(evidence, rag.Evidence{Source: res.Source, Excerpt: rag.Excerpt(res.Text)})
		}
	}
	if evidence == nil {
		evidence = []rag.Evidence{}
	}

	return processed{
		answer:     answer,
		evidence:   evidence,
		confidence: rag.Confidence(0.7, 0.05, len(distinctSources)),
	}
}

func (o *Orchestrator) processSummarize(ctx context.Context, results []rag.RetrievalResult) processed {
	if len(results) == 0 {
		return refusal("I couldn't find information to summarize.")
	}

	systemPrompt := "You are an expert at summarizing policy documents. Create a comprehensive, well-structured summary."
	userPrompt := fmt.Sprintf("Summarize the following information:\n\n%s\n\nProvide a clear summary.", o.generator.BuildContext(results))

	return processed{
		answer:     o.generator.Complete(ctx, systemPrompt, userPrompt, 0, "summary"),
		evidence:   rag.BuildEvidence(results, 3),
		confidence: rag.Confidence(0.65, 0.08, len(results)),
	}
}

func (o *Orchestrator) processAnalyze(ctx context.Context, query string, results []rag.RetrievalResult) processed {
	if len(results) == 0 {
		return refusal("I couldn't find information to analyze.")
	}

	systemPrompt := "You are an expert analyst. Provide detailed analysis, explanations, and insights based on the provided context."
	userPrompt := fmt.Sprintf("Analyze the following information:\n\n%s\n\nQuestion: %s\n\nProvide a detailed analysis.",
		o.generator.BuildContext(results), query)

	// 分析分支允许略微发散的措辞
	return processed{
		answer:     o.generator.Complete(ctx, systemPrompt, userPrompt, 0.1, "analysis"),
		evidence:   rag.BuildEvidence(results, 3),
		confidence: rag.Confidence(0.7, 0.07, len(results)),
	}
}

// dedupeSources 去重证据来源,保留首次出现顺序。
func dedupeSources(evidence []rag.Evidence) []string {
	seen := map[string]struct{}{}
	sources := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if _, ok := seen[e.Source]; ok {
			continue
		}
		seen[e.Source] = struct{}{}
		sources = append(sources, e.Source)
	}
	return sources
}
