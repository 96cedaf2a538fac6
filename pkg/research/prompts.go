package research

import "fmt"

const queryWriterInstructions = `Your goal is to generate a targeted web search query.

The query will gather information related to a specific topic.

Topic:
%s

Return your query as a JSON object:
{
    "query": "string",
    "aspect": "string",
    "rationale": "string"
}`

const queryWriterRequest = "Generate a query for web search:"

const summarizerInstructions = `Your goal is to generate a high-quality summary of the web search results.

When EXTENDING an existing summary:
1. Seamlessly integrate new information without repeating what's already covered
2. Maintain consistency with the existing content's style and depth
3. Only add new, non-redundant information
4. Ensure smooth transitions between existing and new content

When creating a NEW summary:
1. Highlight the most relevant information from each source
2. Provide a concise overview of the key points related to the report topic
3. Emphasize significant findings or insights
4. Ensure a coherent flow of information

In both cases:
- Focus on factual, objective information
- Maintain a consistent technical depth
- Avoid redundancy and repetition
- DO NOT use phrases like "based on the new results" or "according to additional sources"
- DO NOT add a preamble like "Here is an extended summary ..." Just directly output the summary.
- DO NOT add a References or Works Cited section.`

const reflectionInstructions = `You are an expert research assistant analyzing a summary about %s.

Your tasks:
1. Identify knowledge gaps or areas that need deeper exploration
2. Generate a follow-up question that would help expand your understanding
3. Focus on technical details, implementation specifics, or emerging trends that weren't fully covered

Ensure the follow-up question is self-contained and includes necessary context for web search.

Return your analysis as a JSON object:
{
    "knowledge_gap": "string",
    "follow_up_query": "string"
}`

func queryWriterPrompt(topic string) string {
	return fmt.Sprintf(queryWriterInstructions, topic)
}

func reflectionPrompt(topic string) string {
	return fmt.Sprintf(reflectionInstructions, topic)
}

func reflectionRequest(summary string) string {
	return "Identify a knowledge gap and generate a follow-up web search query based on our existing knowledge: " + summary
}

func summarizeRequest(state *ResearchState) string {
	if state.HasSummary() {
		return fmt.Sprintf("Extend the existing summary: %s\n\nInclude new search results: %s That addresses the following topic: %s",
			state.RunningSummary, state.latestResearch(), state.Topic)
	}
	return fmt.Sprintf("Generate a summary of these search results: %s That addresses the following topic: %s",
		state.latestResearch(), state.Topic)
}

func finalReport(summary, sources string) string {
	return fmt.Sprintf("## Summary\n\n%s\n\n### Sources:\n%s", summary, sources)
}
