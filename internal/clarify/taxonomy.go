package clarify

import "regexp"

// Slot is a qualifier that disambiguates a symptom description.
type Slot string

const (
	SlotLocation   Slot = "location"
	SlotDuration   Slot = "duration"
	SlotSeverity   Slot = "severity"
	SlotCharacter  Slot = "character"
	SlotTemp       Slot = "temperature"
	SlotAssociated Slot = "associated_symptoms"
	SlotAllergy    Slot = "allergy_history"
	SlotAge        Slot = "age"
	SlotCondition  Slot = "condition"
)

// slotDetectors recognise each slot in free text.
var slotDetectors = map[Slot]*regexp.Regexp{
	SlotLocation: regexp.MustCompile(`左|右|前额|额头|太阳穴|后脑|头顶|眼眶|上腹|下腹|小腹|肚脐|脐周|胸口|胸部|后背|背部|腰|腿|膝|关节|喉咙|咽|全身|一侧|两侧|部位`),
	SlotDuration: regexp.MustCompile(`\d+\s*(天|日|周|星期|个月|月|年|小时|分钟)|[一二两三四五六七八九十几半]+\s*(天|日|周|星期|个月|月|年|小时)|持续|好几天|最近|昨天|前天|今天|早上|晚上|夜里|刚刚|反复|经常|一直|(?i:\b\d+\s*(days?|weeks?|hours?|months?)\b)`),
	SlotSeverity: regexp.MustCompile(`剧烈|严重|轻微|厉害|有点|一点|加重|减轻|难忍|受不了|\d+\s*分|(?i:\b(mild|moderate|severe)\b)`),
	SlotCharacter: regexp.MustCompile(`刺痛|胀痛|跳痛|钝痛|隐痛|绞痛|搏动|压迫|紧绷|针扎|阵发|持续性|腹胀|腹泻|拉肚子|恶心|呕吐|反酸|烧心|干咳|有痰|黄痰|白痰|光照|畏光|怕光`),
	SlotTemp:      regexp.MustCompile(`\d{2}(\.\d)?\s*(度|℃|°)|三十[七八九]度|四十度|高烧|低烧`),
	SlotAssociated: regexp.MustCompile(`伴随|伴有|还有|同时|并且|咳嗽|流涕|流鼻涕|鼻塞|喉咙痛|咽痛|呕吐|恶心|头晕|乏力|皮疹|畏寒|发冷|出汗|腹泻|胸闷|气短`),
	SlotAllergy:    regexp.MustCompile(`过敏|(?i:allerg)`),
	SlotAge:        regexp.MustCompile(`\d+\s*(岁|个月大)|孩子|宝宝|儿童|婴儿|小孩|老人|成人|孕妇|怀孕|哺乳`),
	SlotCondition:  regexp.MustCompile(`高血压|糖尿病|感冒|流感|发烧|发热|咳嗽|头疼|头痛|疼|痛|炎|失眠|便秘|腹泻|哮喘|湿疹|症状`),
}

// Category is one row of the symptom taxonomy.
type Category struct {
	Name string
	// Trigger matches messages in this category.
	Trigger *regexp.Regexp
	// Slots are the qualifiers that count toward MinSlots.
	Slots    []Slot
	MinSlots int
	// Template is the follow-up question asked when slots are missing.
	Template string
}

// Question templates.
const (
	templateHeadache   = "为了更好地帮助您，您能描述一下是哪种类型的头痛吗？比如是刺痛、胀痛、跳痛还是其他？头痛主要在哪个部位？持续多久了？"
	templateStomach    = "您说的肚子不舒服，具体是什么感觉？是腹痛、腹胀、恶心还是其他？这种情况持续多久了？"
	templateFever      = "请问您的体温大概多少度？发烧持续多长时间了？有没有其他伴随症状，比如咳嗽、喉咙痛等？"
	templateCough      = "请问咳嗽持续多久了？是干咳还是有痰？有没有发烧、胸闷等其他症状？"
	templateMedication = "在给出用药建议之前，请问您目前有哪些具体症状？是否有已知的药物过敏史？用药的是成人还是儿童？"
	templateSymptom    = "为了更好地帮助您，您能具体描述一下您的症状的情况吗？例如：症状出现的部位、持续时间、严重程度、伴随的其他不适等。"
	templateGeneral    = "您的问题比较宽泛。能否具体说一下您最关心的是哪方面？例如：预防措施、饮食建议、运动建议或具体症状的应对方法？"
)

// DefaultTaxonomy is checked in order; the first matching category wins.
func DefaultTaxonomy() []Category {
	return []Category{
		{
			Name:     "headache",
			Trigger:  regexp.MustCompile(`头疼|头痛|头昏|偏头痛|(?i:headache)`),
			Slots:    []Slot{SlotLocation, SlotDuration, SlotCharacter, SlotSeverity, SlotAssociated},
			MinSlots: 2,
			Template: templateHeadache,
		},
		{
			Name:     "abdominal",
			Trigger:  regexp.MustCompile(`肚子|胃|腹痛|腹泻|腹胀|拉肚子|(?i:stomach)`),
			Slots:    []Slot{SlotLocation, SlotDuration, SlotCharacter, SlotSeverity, SlotAssociated},
			MinSlots: 2,
			Template: templateStomach,
		},
		{
			Name:     "fever",
			Trigger:  regexp.MustCompile(`发烧|发热|(?i:fever)`),
			Slots:    []Slot{SlotTemp, SlotDuration, SlotAssociated, SlotAge},
			MinSlots: 2,
			Template: templateFever,
		},
		{
			Name:     "cough",
			Trigger:  regexp.MustCompile(`咳嗽|咳痰|干咳|(?i:cough)`),
			Slots:    []Slot{SlotDuration, SlotCharacter, SlotAssociated, SlotAge},
			MinSlots: 2,
			Template: templateCough,
		},
		{
			Name:     "medication",
			Trigger:  regexp.MustCompile(`(吃|用|服).{0,6}药|能不能吃|可以吃|能吃|布洛芬|阿莫西林|对乙酰氨基酚|头孢`),
			Slots:    []Slot{SlotCondition, SlotAllergy, SlotAge},
			MinSlots: 2,
			Template: templateMedication,
		},
		{
			Name:     "general_discomfort",
			Trigger:  regexp.MustCompile(`不舒服|难受|有问题|出了?问题|疼|痛`),
			Slots:    []Slot{SlotLocation, SlotDuration, SlotCharacter, SlotSeverity, SlotAssociated},
			MinSlots: 2,
			Template: templateSymptom,
		},
	}
}

// GeneralQuestion is asked when a very short message names no condition.
const GeneralQuestion = templateGeneral
