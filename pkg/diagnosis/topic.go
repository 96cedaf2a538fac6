package diagnosis

import "strings"

const (
	topicHead = "A patient has shown up with the below skin condition:"
	topicTail = "Your job is to recommend a medicine for the patient. Also explain the reasoning behind your recommendation.If Recomendation is not possible then dont recommend any medicine. Just recommend a specialist doctor to consult."
)

// BuildTopic wraps a condition in the treatment-recommendation prompt used as
// the research topic.
func BuildTopic(condition string) string {
	return topicHead + condition + topicTail
}

var htmlReplacer = strings.NewReplacer("\n", "<br>", "\t", "&nbsp;&nbsp;&nbsp;&nbsp;")

// FormatForHTML prepares a report for display in the patient app.
func FormatForHTML(report string) string {
	return htmlReplacer.Replace(report)
}
