package transform

// Instruction is the fixed prompt sent with every drawing.
const Instruction = `
    You are an expert engineering assistant AI called "EngiDigitize". Your task is to analyze the provided engineering drawing.
    Perform two critical actions:
    1.  **Extract Data**: Meticulously extract all textual information from title blocks, bills of materials, component lists, specifications, and any notes. Structure this information as a clean, well-formed JSON object.
    2.  **Vectorize Drawing**: Convert the main schematic or drawing area into a clean, simplified, and accurate SVG format. The SVG must be valid and renderable.

    Return a single JSON object that conforms to the provided schema, with two keys:
    - "structuredData": A string containing the JSON data you extracted.
    - "vectorDrawing": A string containing the complete SVG code you generated.
  `

// Response field names and their schema descriptions.
const (
	FieldStructuredData = "structuredData"
	FieldVectorDrawing  = "vectorDrawing"

	structuredDataDescription = "A JSON formatted string containing the structured data extracted from the drawing, such as title block information, bill of materials, and notes. Ensure all keys and string values are enclosed in double quotes."
	vectorDrawingDescription  = "A string containing the complete, valid SVG code representing a vectorized version of the main drawing area. The SVG should be scalable and include a viewBox attribute."
)

// responseMIMEType forces a bare JSON body.
const responseMIMEType = "application/json"

func ptrFloat32(v float32) *float32 { return &v }
