package scanning

const meterSystemPrompt = "You are an OCR expert for electricity, water and gas meters."

// meterScanPrompt is the shared prompt used by all vision providers
const meterScanPrompt = `You are specialised in reading utility meters precisely. Extract structured information from the photograph of a meter.

Extract the following as precisely as possible:

1. **Meter number**: the identification number printed on the meter (e.g. 1 234 567).
2. **Current reading**: the counter value, usually six digits with one decimal place (e.g. 123456,7). Use a comma as the decimal separator.
3. **Unit**: kWh, m³ or whatever unit is printed next to the counter.
4. **Tariff registers**: if the meter shows separate high (HT) and low (NT) tariff registers, their readings.
5. **Additional information**: serial numbers, reading date or other notes, if visible.

Give a confidence between 0 and 1 for every value.
If a value cannot be read, use "unknown" as the value and 0 as the confidence.

Return ONLY valid JSON in this exact format:
{
  "meter_number": {"value": "123456789", "confidence": 0.98},
  "current_reading": {"value": "543210,7", "confidence": 0.95},
  "unit": {"value": "kWh", "confidence": 0.92},
  "tariff_info": {
    "HT": {"value": "unknown", "confidence": 0},
    "NT": {"value": "unknown", "confidence": 0}
  },
  "additional_info": {"value": "Serial: XYZ12345, read on 01.03.2025", "confidence": 0.85}
}

Important:
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
